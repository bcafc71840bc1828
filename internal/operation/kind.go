package operation

import (
	"fmt"
	"strings"
)

// Kind names a dataset operation
type Kind int

const (
	None Kind = iota
	Insert
	InsertIdentity
	Delete
	DeleteAll
	Update
	Refresh
	CleanInsert
	CleanInsertIdentity
)

// Kinds lists every operation kind.
var Kinds = []Kind{None, Insert, InsertIdentity, Delete, DeleteAll, Update, Refresh, CleanInsert, CleanInsertIdentity}

var kindNames = map[Kind]string{
	None:                "none",
	Insert:              "insert",
	InsertIdentity:      "insert-identity",
	Delete:              "delete",
	DeleteAll:           "delete-all",
	Update:              "update",
	Refresh:             "refresh",
	CleanInsert:         "clean-insert",
	CleanInsertIdentity: "clean-insert-identity",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind resolves an operation name. Underscores and case are ignored, so
// "CLEAN_INSERT" and "clean-insert" are the same kind.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for _, k := range Kinds {
		if kindNames[k] == normalized || strings.ReplaceAll(kindNames[k], "-", "") == normalized {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown operation: %s", name)
}

// Names returns the name of every kind in declaration order.
func Names() []string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = k.String()
	}
	return names
}

//go:build !wasm

package zorm

import (
	"sort"

	fmt "github.com/tinywasm/fmt"
)

// RelationInfo describes a one-to-many loader generated on the child side.
type RelationInfo struct {
	ChildStruct string // e.g. "Role"
	FKField     string // e.g. "UserID"
	FKColumn    string // e.g. "user_id"
	LoaderName  string // e.g. "ListRoleByUserID"
	FKGoType    string // accessor type of the FK, e.g. "string", "int64"
}

// ResolveRelations matches every []Child field of a parent struct with the
// child field tagged ref=<parent table> and records a loader on the child.
func (g *Gen) ResolveRelations(all map[string]StructInfo) {
	var parentNames []string
	for name := range all {
		parentNames = append(parentNames, name)
	}
	sort.Strings(parentNames)

	for _, parentName := range parentNames {
		parent := all[parentName]
		for _, sf := range parent.SliceFields {
			child, ok := all[sf.ElemType]
			if !ok {
				g.log(fmt.Sprintf("Warning: relation field %s.%s points to unknown struct %s; skipping", parentName, sf.Name, sf.ElemType))
				continue
			}
			fk := findFKField(child, parent.TableName)
			if fk == nil {
				g.log(fmt.Sprintf("Warning: no field of %s has ref=%s (from %s.%s); skipping relation loader", sf.ElemType, parent.TableName, parentName, sf.Name))
				continue
			}
			child.Relations = append(child.Relations, RelationInfo{
				ChildStruct: child.Name,
				FKField:     fk.Name,
				FKColumn:    fk.ColumnName,
				LoaderName:  fmt.Sprintf("List%sBy%s", child.Name, fk.Name),
				FKGoType:    fk.AccessorType,
			})
			all[sf.ElemType] = child
		}
	}
}

func findFKField(child StructInfo, parentTable string) *FieldInfo {
	for i := range child.Fields {
		if child.Fields[i].Ref == parentTable {
			return &child.Fields[i]
		}
	}
	return nil
}

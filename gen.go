//go:build !wasm

package zorm

import (
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"

	fmt "github.com/tinywasm/fmt"
)

// FieldInfo describes a struct field mapped to a column.
type FieldInfo struct {
	Name         string // Go field name
	ColumnName   string
	GoType       string // declared type, e.g. "int32"
	Descriptor   string // field constructor suffix, e.g. "IntField", "GenericField[float64]"
	AccessorType string // type used by the generated getter and setter
	Constraints  Constraint
	Ref          string
	RefColumn    string
	IsPK         bool
}

// SliceFieldInfo records a []Struct field of a parent struct. It is not
// mapped to a column and only feeds relation resolution.
type SliceFieldInfo struct {
	Name     string // e.g. "Roles"
	ElemType string // e.g. "Role"
}

type StructInfo struct {
	Name              string
	TableName         string
	TableAlias        string
	PackageName       string
	Fields            []FieldInfo
	TableNameDeclared bool
	SourceFile        string
	SliceFields       []SliceFieldInfo
	Relations         []RelationInfo
	needsTime         bool
}

// RecordName is the name of the generated record type.
func (s StructInfo) RecordName() string { return s.Name + "Record" }

func (s StructInfo) pk() *FieldInfo {
	for i := range s.Fields {
		if s.Fields[i].IsPK {
			return &s.Fields[i]
		}
	}
	return nil
}

// detectStringMethod returns the literal returned by func (X) method()
// string declared on structName, or "".
func detectStringMethod(node *ast.File, structName, method string) string {
	for _, decl := range node.Decls {
		funcDecl, ok := decl.(*ast.FuncDecl)
		if !ok || funcDecl.Recv == nil || len(funcDecl.Recv.List) == 0 {
			continue
		}
		if funcDecl.Name.Name != method {
			continue
		}
		recv := funcDecl.Recv.List[0].Type
		recvName := ""
		if ident, ok := recv.(*ast.Ident); ok {
			recvName = ident.Name
		} else if star, ok := recv.(*ast.StarExpr); ok {
			if ident, ok := star.X.(*ast.Ident); ok {
				recvName = ident.Name
			}
		}
		if recvName != structName {
			continue
		}
		if funcDecl.Body != nil && len(funcDecl.Body.List) == 1 {
			if ret, ok := funcDecl.Body.List[0].(*ast.ReturnStmt); ok && len(ret.Results) == 1 {
				if lit, ok := ret.Results[0].(*ast.BasicLit); ok {
					return fmt.Convert(lit.Value).TrimPrefix(`"`).TrimSuffix(`"`).String()
				}
			}
		}
	}
	return ""
}

// ParseStruct parses one struct of a Go file.
//
// Columns are described by db tags: db:"[column][,pk][,int][,autogen][,lazy][,null][,ref=table[:column]]".
// A field named like the table id is the primary key unless another field
// is tagged pk.
func (g *Gen) ParseStruct(structName string, goFile string) (StructInfo, error) {
	if structName == "" {
		return StructInfo{}, fmt.Err("Please provide a struct name")
	}
	if goFile == "" {
		return StructInfo{}, fmt.Err("goFile path cannot be empty")
	}

	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, goFile, nil, parser.ParseComments)
	if err != nil {
		return StructInfo{}, fmt.Err(err, "Failed to parse file")
	}

	var targetStruct *ast.StructType
	ast.Inspect(node, func(n ast.Node) bool {
		if typeSpec, ok := n.(*ast.TypeSpec); ok && typeSpec.Name.Name == structName {
			if structType, ok := typeSpec.Type.(*ast.StructType); ok {
				targetStruct = structType
				return false
			}
		}
		return true
	})
	if targetStruct == nil {
		return StructInfo{}, fmt.Err("Struct not found in file")
	}

	tableName := detectStringMethod(node, structName, "TableName")
	declared := tableName != ""
	if !declared {
		tableName = fmt.Convert(structName + "s").SnakeLow().String()
	}
	alias := detectStringMethod(node, structName, "TableAlias")
	if alias == "" {
		alias = tableName
	}

	info := StructInfo{
		Name:              structName,
		TableName:         tableName,
		TableAlias:        alias,
		PackageName:       node.Name.Name,
		TableNameDeclared: declared,
	}

	pkIndex := -1
	for _, field := range targetStruct.Fields.List {
		if len(field.Names) == 0 {
			continue
		}
		fieldName := field.Names[0].Name
		if !ast.IsExported(fieldName) {
			continue
		}

		dbTag := ""
		if field.Tag != nil {
			tagVal := fmt.Convert(field.Tag.Value).TrimPrefix("`").TrimSuffix("`").String()
			for _, p := range fmt.Convert(tagVal).Split(" ") {
				if fmt.HasPrefix(p, "db:\"") {
					dbTag = fmt.Convert(p).TrimPrefix(`db:"`).TrimSuffix(`"`).String()
					break
				}
			}
		}
		if dbTag == "-" {
			continue
		}

		if arr, ok := field.Type.(*ast.ArrayType); ok {
			if elt, ok := arr.Elt.(*ast.Ident); ok && elt.Name != "byte" {
				info.SliceFields = append(info.SliceFields, SliceFieldInfo{Name: fieldName, ElemType: elt.Name})
				continue
			}
		}

		typeStr := ""
		switch t := field.Type.(type) {
		case *ast.Ident:
			typeStr = t.Name
		case *ast.SelectorExpr:
			if pkg, ok := t.X.(*ast.Ident); ok {
				typeStr = pkg.Name + "." + t.Sel.Name
			}
		case *ast.ArrayType:
			if elt, ok := t.Elt.(*ast.Ident); ok && elt.Name == "byte" {
				typeStr = "[]byte"
			}
		}

		fi := FieldInfo{
			Name:       fieldName,
			ColumnName: fmt.Convert(fieldName).SnakeLow().String(),
			GoType:     typeStr,
		}
		textInt := false
		pkTagged := false
		if dbTag != "" {
			for i, p := range fmt.Convert(dbTag).Split(",") {
				switch {
				case p == "pk":
					pkTagged = true
				case p == "int":
					textInt = true
				case p == "autogen":
					fi.Constraints |= ConstraintAutoGenerated
				case p == "lazy":
					fi.Constraints |= ConstraintLazy
				case p == "null":
					fi.Constraints |= ConstraintNullable
				case fmt.HasPrefix(p, "ref="):
					refParts := fmt.Convert(fmt.Convert(p).TrimPrefix("ref=").String()).Split(":")
					fi.Ref = refParts[0]
					if len(refParts) > 1 {
						fi.RefColumn = refParts[1]
					}
				case i == 0 && p != "":
					fi.ColumnName = p
				}
			}
		}

		isID, isPK := fmt.IDorPrimaryKey(tableName, fieldName)
		if pkTagged || ((isID || isPK) && pkIndex < 0) {
			if pkTagged && pkIndex >= 0 {
				info.Fields[pkIndex].IsPK = false
				info.Fields[pkIndex].Descriptor, info.Fields[pkIndex].AccessorType = describe(info.Fields[pkIndex].GoType, false, false)
			}
			fi.IsPK = true
		}

		fi.Descriptor, fi.AccessorType = describe(typeStr, textInt, fi.IsPK)
		if fi.Descriptor == "" {
			g.log(fmt.Sprintf("Warning: unsupported type %s for field %s.%s; skipping. Add db:\"-\" to suppress.", typeStr, structName, fieldName))
			continue
		}
		if fi.IsPK {
			if fi.Constraints&ConstraintNullable != 0 {
				return StructInfo{}, fmt.Err("primary key field", fieldName, "can not be null")
			}
			pkIndex = len(info.Fields)
		}
		if typeStr == "time.Time" {
			info.needsTime = true
		}
		info.Fields = append(info.Fields, fi)
	}
	return info, nil
}

// describe maps a Go type to a field descriptor and its accessor type.
// Primary keys are always string typed: integer ones become StringIntField.
func describe(goType string, textInt, pk bool) (descriptor, accessor string) {
	switch goType {
	case "string":
		if textInt {
			return "StringIntField", "string"
		}
		return "StringField", "string"
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		if pk || textInt {
			return "StringIntField", "string"
		}
		return "IntField", "int64"
	case "bool":
		if pk {
			return "", ""
		}
		return "BoolField", "bool"
	case "float32", "float64":
		if pk {
			return "", ""
		}
		return "GenericField[float64]", "float64"
	case "[]byte":
		if pk {
			return "", ""
		}
		return "GenericField[[]byte]", "[]byte"
	case "time.Time":
		if pk {
			return "", ""
		}
		return "GenericField[time.Time]", "time.Time"
	}
	return "", ""
}

func constraintExpr(c Constraint) string {
	if c == ConstraintNone {
		return ""
	}
	var parts []string
	if c&ConstraintAutoGenerated != 0 {
		parts = append(parts, "zorm.ConstraintAutoGenerated")
	}
	if c&ConstraintNullable != 0 {
		parts = append(parts, "zorm.ConstraintNullable")
	}
	if c&ConstraintLazy != 0 {
		parts = append(parts, "zorm.ConstraintLazy")
	}
	return ", " + fmt.Convert(parts).Join(", ").String()
}

// GenerateForStruct parses one struct and writes its record file.
func (g *Gen) GenerateForStruct(structName string, goFile string) error {
	info, err := g.ParseStruct(structName, goFile)
	if err != nil {
		return err
	}
	if len(info.Fields) == 0 {
		return nil
	}
	return g.GenerateForFile([]StructInfo{info}, goFile)
}

// GenerateForFile writes the record types of infos to <file>_zorm.go next
// to sourceFile.
func (g *Gen) GenerateForFile(infos []StructInfo, sourceFile string) error {
	if len(infos) == 0 {
		return nil
	}
	buf := fmt.Convert()

	buf.Write("// Code generated by zormc; DO NOT EDIT.\n\n")
	buf.Write(fmt.Sprintf("package %s\n\n", infos[0].PackageName))
	buf.Write("import (\n")
	for _, info := range infos {
		if info.needsTime {
			buf.Write("\t\"time\"\n\n")
			break
		}
	}
	buf.Write("\t\"github.com/tinywasm/zorm\"\n")
	buf.Write(")\n\n")

	for _, info := range infos {
		buf.Write(structSource(info))
	}

	src := buf.Bytes()
	if formatted, err := format.Source(src); err == nil {
		src = formatted
	} else {
		g.log(fmt.Sprintf("Warning: generated code for %s is not gofmt clean: %v", sourceFile, err))
	}
	outName := fmt.Convert(sourceFile).TrimSuffix(".go").String() + "_zorm.go"
	return os.WriteFile(outName, src, 0644)
}

// structSource returns the generated declarations of one struct.
func structSource(info StructInfo) string {
	buf := fmt.Convert()
	rec := info.RecordName()
	schemaVar := info.Name + "Schema"
	fieldsVar := info.Name + "Fields"

	buf.Write(fmt.Sprintf("// %s is the persistent record of table %s.\n", rec, info.TableName))
	buf.Write(fmt.Sprintf("type %s struct {\n\tzorm.Record\n}\n\n", rec))

	buf.Write(fmt.Sprintf("var %s = zorm.NewSchema(\"%s\", \"%s\", func() zorm.Persistent { return &%s{} })\n\n", schemaVar, info.TableName, info.TableAlias, rec))

	buf.Write(fmt.Sprintf("var %s = struct {\n", fieldsVar))
	for _, f := range info.Fields {
		buf.Write(fmt.Sprintf("\t%s *zorm.%s\n", f.Name, f.Descriptor))
	}
	buf.Write("}{\n")
	for _, f := range info.Fields {
		ctor := "zorm.New" + f.Descriptor
		buf.Write(fmt.Sprintf("\t%s: %s(\"%s\"%s),\n", f.Name, ctor, f.ColumnName, constraintExpr(f.Constraints)))
	}
	buf.Write("}\n\n")

	buf.Write("func init() {\n")
	if pk := info.pk(); pk != nil && pk.ColumnName != "id" {
		buf.Write(fmt.Sprintf("\t%s.MustSetIDField(%s.%s)\n", schemaVar, fieldsVar, pk.Name))
	}
	buf.Write(fmt.Sprintf("\t%s.MustSetFields(\n", schemaVar))
	for _, f := range info.Fields {
		buf.Write(fmt.Sprintf("\t\t%s.%s,\n", fieldsVar, f.Name))
	}
	buf.Write("\t)\n}\n\n")

	buf.Write(fmt.Sprintf("func (r *%s) Schema() *zorm.Schema { return %s }\n\n", rec, schemaVar))
	buf.Write(fmt.Sprintf("func (r *%s) Base() *zorm.Record { return &r.Record }\n\n", rec))

	for _, f := range info.Fields {
		if !f.IsPK {
			buf.Write(fmt.Sprintf("func (r *%s) Get%s() (%s, error) { return %s.%s.Get(r) }\n\n", rec, f.Name, f.AccessorType, fieldsVar, f.Name))
		}
		buf.Write(fmt.Sprintf("func (r *%s) Set%s(v %s) error { return %s.%s.Set(r, v) }\n\n", rec, f.Name, f.AccessorType, fieldsVar, f.Name))
	}

	buf.Write(fmt.Sprintf("// New%s returns a new %s attached to s.\n", info.Name, rec))
	buf.Write(fmt.Sprintf("func New%s(s *zorm.Session) (*%s, error) {\n", info.Name, rec))
	buf.Write(fmt.Sprintf("\tp, err := s.New(%s)\n", schemaVar))
	buf.Write("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
	buf.Write(fmt.Sprintf("\treturn p.(*%s), nil\n}\n\n", rec))

	if info.pk() != nil {
		buf.Write(fmt.Sprintf("// Get%s loads the %s with the given id.\n", info.Name, rec))
		buf.Write(fmt.Sprintf("func Get%s(s *zorm.Session, id string, fields ...zorm.Field) (*%s, error) {\n", info.Name, rec))
		buf.Write(fmt.Sprintf("\tp, err := s.Get(%s, id, fields...)\n", schemaVar))
		buf.Write("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
		buf.Write(fmt.Sprintf("\treturn p.(*%s), nil\n}\n\n", rec))
	}

	for _, rel := range info.Relations {
		buf.Write(fmt.Sprintf("// %s returns the %s rows whose %s references parentID.\n", rel.LoaderName, rel.ChildStruct, rel.FKColumn))
		buf.Write(fmt.Sprintf("func %s(s *zorm.Session, parentID %s) ([]*%s, error) {\n", rel.LoaderName, rel.FKGoType, rec))
		buf.Write(fmt.Sprintf("\trows, err := s.SelectQuery().Select(%s).Where(zorm.Eq(%s.%s, parentID)).ExecuteUniqueSelect()\n", schemaVar, fieldsVar, rel.FKField))
		buf.Write("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
		buf.Write(fmt.Sprintf("\tout := make([]*%s, 0, len(rows))\n", rec))
		buf.Write("\tfor _, row := range rows {\n")
		buf.Write(fmt.Sprintf("\t\tout = append(out, row.(*%s))\n", rec))
		buf.Write("\t}\n\treturn out, nil\n}\n\n")
	}
	return buf.String()
}

// collectAllStructs walks rootDir and parses every struct of the model.go
// and models.go files, keyed by struct name.
func (g *Gen) collectAllStructs() (map[string]StructInfo, []string, []string, error) {
	all := make(map[string]StructInfo)
	var structOrder []string
	var fileOrder []string
	fileSeen := make(map[string]bool)

	err := filepath.Walk(g.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			switch info.Name() {
			case "vendor", ".git", "testdata":
				return filepath.SkipDir
			}
			return nil
		}
		if name := info.Name(); name != "model.go" && name != "models.go" {
			return nil
		}

		node, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.ParseComments)
		if err != nil {
			g.log(fmt.Sprintf("Skipping unparseable file %s: %v", path, err))
			return nil
		}
		for _, decl := range node.Decls {
			genDecl, ok := decl.(*ast.GenDecl)
			if !ok || genDecl.Tok != token.TYPE {
				continue
			}
			for _, spec := range genDecl.Specs {
				typeSpec, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				if _, ok := typeSpec.Type.(*ast.StructType); !ok {
					continue
				}
				si, err := g.ParseStruct(typeSpec.Name.Name, path)
				if err != nil {
					g.log(fmt.Sprintf("Skipping %s in %s: %v", typeSpec.Name.Name, path, err))
					continue
				}
				if len(si.Fields) == 0 {
					g.log(fmt.Sprintf("Warning: %s has no mappable fields; skipping", typeSpec.Name.Name))
					continue
				}
				si.SourceFile = path
				all[si.Name] = si
				structOrder = append(structOrder, si.Name)
				if !fileSeen[path] {
					fileSeen[path] = true
					fileOrder = append(fileOrder, path)
				}
			}
		}
		return nil
	})
	return all, structOrder, fileOrder, err
}

func (g *Gen) generateAll(all map[string]StructInfo, structOrder []string, fileOrder []string) error {
	byFile := make(map[string][]StructInfo)
	for _, name := range structOrder {
		info := all[name]
		byFile[info.SourceFile] = append(byFile[info.SourceFile], info)
	}
	for _, sourceFile := range fileOrder {
		if err := g.GenerateForFile(byFile[sourceFile], sourceFile); err != nil {
			return fmt.Err(err, "write output for", sourceFile)
		}
	}
	return nil
}

// Run scans rootDir, resolves relations across all model files and writes
// one _zorm.go file per model file.
func (g *Gen) Run() error {
	all, structOrder, fileOrder, err := g.collectAllStructs()
	if err != nil {
		return fmt.Err(err, "error walking directory")
	}
	if len(all) == 0 {
		return fmt.Err("no models found")
	}
	g.ResolveRelations(all)
	return g.generateAll(all, structOrder, fileOrder)
}

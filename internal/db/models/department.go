// Package models - department.go defines the Department model. Departments belong to exactly one
// organization and form a tree through the optional ParentID self-reference.
package models

// Department represents a division or team inside an organization
type Department struct {
	ID             int64  `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	OrganizationID int64  `db:"organization_id" json:"organization_id"`
	ParentID       *int64 `db:"parent_id" json:"parent_id"`
}

// IsRoot reports whether the department has no parent
func (d *Department) IsRoot() bool {
	return d.ParentID == nil
}

// DepartmentNode is a department together with its direct children, used to render subtrees
type DepartmentNode struct {
	Department
	Children []*DepartmentNode `json:"children"`
}

// BuildDepartmentTree arranges a flat list of departments into trees. Departments whose parent
// is not part of the list become roots, so a subtree query yields exactly one root.
// Input order is preserved among siblings.
func BuildDepartmentTree(departments []*Department) []*DepartmentNode {
	nodes := make(map[int64]*DepartmentNode, len(departments))
	for _, d := range departments {
		nodes[d.ID] = &DepartmentNode{Department: *d, Children: make([]*DepartmentNode, 0)}
	}

	roots := make([]*DepartmentNode, 0)
	for _, d := range departments {
		node := nodes[d.ID]
		if d.ParentID != nil {
			if parent, ok := nodes[*d.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

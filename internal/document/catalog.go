// Package document はロールで閲覧範囲を制限する社内資料カタログを提供する。
package document

import (
	"github.com/hitoshi/portal/internal/model"
)

// Catalog は資料の一覧を保持する。生成後は読み取り専用。
type Catalog struct {
	docs []model.Document
	byID map[string]int
}

// seededDocuments はポータルのダウンロード一覧の初期データ。
var seededDocuments = []model.Document{
	{ID: "1", Name: "Employee Handbook 2024", Category: "HR", Size: "2.4 MB", MinRole: model.RoleUser, UpdatedAt: "2023-12-01"},
	{ID: "2", Name: "Annual Performance Review Template", Category: "HR", Size: "0.5 MB", MinRole: model.RoleUser, UpdatedAt: "2023-11-15"},
	{ID: "3", Name: "Quarterly Strategic Audit Q3", Category: "Finance", Size: "15.8 MB", MinRole: model.RoleManager, UpdatedAt: "2023-10-30"},
	{ID: "4", Name: "Risk Assessment Framework v2", Category: "Compliance", Size: "4.2 MB", MinRole: model.RoleManager, UpdatedAt: "2023-10-10"},
	{ID: "5", Name: "Network Architecture Schema", Category: "IT", Size: "8.1 MB", MinRole: model.RoleITAdmin, UpdatedAt: "2023-09-25"},
	{ID: "6", Name: "Database Recovery Protocols", Category: "IT", Size: "1.2 MB", MinRole: model.RoleITAdmin, UpdatedAt: "2023-09-20"},
}

// NewCatalog は資料一覧からCatalogを生成する。docsがnilの場合は初期データを使う。
// IDが重複する場合は先の資料を優先する。
func NewCatalog(docs []model.Document) *Catalog {
	if docs == nil {
		docs = seededDocuments
	}
	c := &Catalog{
		docs: make([]model.Document, 0, len(docs)),
		byID: make(map[string]int, len(docs)),
	}
	for _, d := range docs {
		if _, dup := c.byID[d.ID]; dup {
			continue
		}
		c.byID[d.ID] = len(c.docs)
		c.docs = append(c.docs, d)
	}
	return c
}

// ListFor はroleで閲覧できる資料を登録順に返す。未知のロールには何も返さない。
func (c *Catalog) ListFor(role model.Role) []model.Document {
	out := make([]model.Document, 0, len(c.docs))
	for _, d := range c.docs {
		if role.Allows(d.MinRole) {
			out = append(out, d)
		}
	}
	return out
}

// Get はIDで資料を返す。存在しなければDOCUMENT_NOT_FOUND、権限不足ならDOCUMENT_FORBIDDENを返す。
func (c *Catalog) Get(id string, role model.Role) (*model.Document, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, model.NewDocumentNotFoundError(id)
	}
	d := c.docs[i]
	if !role.Allows(d.MinRole) {
		return nil, model.NewDocumentForbiddenError(d.MinRole)
	}
	return &d, nil
}

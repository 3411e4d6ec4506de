package auth

import (
	"strings"

	"github.com/hitoshi/portal/internal/model"
)

// DefaultAdminAllowlist は常にIT_ADMINとして扱うアドレス。
var DefaultAdminAllowlist = []string{"kodev.ali@jsbl.com"}

// RoleRule はemailに対するロール判定ルール1件。
type RoleRule struct {
	Name  string
	Match func(email string) bool
	Role  model.Role
}

// RoleMapper はemailからロールを決定する。
// ルールは登録順に評価し、最初に一致したもののロールを返す。
// 判定はemailのみの純粋関数で、サーバー側の認可情報には依存しない。
type RoleMapper struct {
	rules    []RoleRule
	fallback model.Role
}

// NewRoleMapper は既定のルールセットでRoleMapperを生成する。
//  1. 許可リストに完全一致 → IT_ADMIN
//  2. "admin" を含む → IT_ADMIN
//  3. "manager" を含む → MANAGER
//  4. それ以外 → USER
//
// extraAdmins はDefaultAdminAllowlistに追加される。
func NewRoleMapper(extraAdmins []string) *RoleMapper {
	allow := make(map[string]struct{}, len(DefaultAdminAllowlist)+len(extraAdmins))
	for _, e := range DefaultAdminAllowlist {
		allow[normalizeEmail(e)] = struct{}{}
	}
	for _, e := range extraAdmins {
		allow[normalizeEmail(e)] = struct{}{}
	}

	return &RoleMapper{
		rules: []RoleRule{
			{
				Name: "allowlist",
				Match: func(email string) bool {
					_, ok := allow[email]
					return ok
				},
				Role: model.RoleITAdmin,
			},
			{
				Name:  "contains_admin",
				Match: func(email string) bool { return strings.Contains(email, "admin") },
				Role:  model.RoleITAdmin,
			},
			{
				Name:  "contains_manager",
				Match: func(email string) bool { return strings.Contains(email, "manager") },
				Role:  model.RoleManager,
			},
		},
		fallback: model.RoleUser,
	}
}

// Map はemailに対応するロールを返す。大文字小文字は区別しない。
func (m *RoleMapper) Map(email string) model.Role {
	e := normalizeEmail(email)
	for _, r := range m.rules {
		if r.Match(e) {
			return r.Role
		}
	}
	return m.fallback
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

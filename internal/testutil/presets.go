package testutil

import "github.com/zjrosen/nametags/internal/domain"

// WithStandardTags adds the tags most tests start from.
func (b *Builder) WithStandardTags() *Builder {
	return b.
		WithTag("admin", Prefix("&c&l[Admin] "), Color(domain.ColorRed)).
		WithTag("vip", Prefix("&6[VIP] "), Suffix(" &e*"), Color(domain.ColorGold)).
		WithTag("member")
}

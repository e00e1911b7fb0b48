package styles

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/styledtext"
)

func ptr(t styledtext.Text) *styledtext.Text { return &t }

func TestLegacyColor(t *testing.T) {
	require.Equal(t, "#FFAA00", string(LegacyColor('6')))
	require.Equal(t, "#FFFFFF", string(LegacyColor('z')))
	for _, c := range domain.AllColors() {
		_, ok := legacyPalette[c.Code()]
		require.True(t, ok, c.String())
	}
}

func TestRenderer_PlainOutputForBuffers(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{})

	require.Equal(t, "[VIP] ", r.Text(styledtext.MustParse("&6&l[VIP] ")))
	require.Equal(t, "warn", r.Warning("warn"))
}

func TestRenderer_ChatLine(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{})

	require.Equal(t, "steve: hi", r.ChatLine("steve", nil, "hi"))

	props := domain.Properties{
		Prefix: ptr(styledtext.MustParse("&6[VIP] ")),
		Suffix: ptr(styledtext.MustParse(" &e*")),
		Color:  domain.ColorGold,
	}
	require.Equal(t, "[VIP] steve *: hi", r.ChatLine("steve", &props, "hi"))
}

func TestRenderer_Properties(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{})
	out := r.Properties("member", domain.Properties{Color: domain.ColorWhite})

	require.Contains(t, out, "prefix: none")
	require.Contains(t, out, "color:  white")
}

package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/styledtext"
)

func sampleProperties() domain.Properties {
	prefix := styledtext.MustParse("&6&l[VIP] ")
	return domain.Properties{Prefix: &prefix, Color: domain.ColorGold}
}

func TestCodecs_RoundTripProperties(t *testing.T) {
	for _, codec := range []Codec[domain.Properties]{JSONCodec[domain.Properties]{}, YAMLCodec[domain.Properties]{}} {
		t.Run(codec.Extension(), func(t *testing.T) {
			data, err := codec.Encode(sampleProperties())
			require.NoError(t, err)

			got, err := codec.Decode(data)
			require.NoError(t, err)
			require.True(t, sampleProperties().Equal(got))
			require.Nil(t, got.Suffix)
		})
	}
}

func TestJSONCodec_MissingColorIsWhite(t *testing.T) {
	got, err := JSONCodec[domain.Properties]{}.Decode([]byte(`{"prefix":"&aA"}`))
	require.NoError(t, err)
	require.Equal(t, domain.ColorWhite, got.Color)
}

func TestYAMLCodec_UnknownColorIsWhite(t *testing.T) {
	got, err := YAMLCodec[domain.Properties]{}.Decode([]byte("color: mauve\n"))
	require.NoError(t, err)
	require.Equal(t, domain.ColorWhite, got.Color)
}

func TestJSONCodec_DecodeError(t *testing.T) {
	_, err := JSONCodec[domain.Properties]{}.Decode([]byte(`{`))
	require.ErrorContains(t, err, "decode json")
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap("sqlite", "tags", "save", "vip", nil))
	require.Same(t, ErrNotFound, Wrap("sqlite", "tags", "find", "vip", ErrNotFound))

	cause := errors.New("locked")
	err := Wrap("sqlite", "tags", "save", "vip", cause)

	var de *DriverError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "sqlite", de.Backend)
	require.Equal(t, "save", de.Op)
	require.ErrorIs(t, err, cause)
	require.Equal(t, `sqlite tags save "vip": locked`, err.Error())
}

package charset

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editorfs/model"
)

func TestDetectFallsBackToUTF8(t *testing.T) {
	assert.Equal(t, UTF8, Detect(nil))
	assert.Equal(t, UTF8, Detect([]byte{}))
}

func TestDetectReturnsUsableCharset(t *testing.T) {
	sample := []byte(strings.Repeat("The quick brown fox jumps over the lazy dog.\n", 50))
	name := Detect(sample)
	require.NotEmpty(t, name)

	text, err := Decode(sample, name)
	require.NoError(t, err)
	assert.Equal(t, string(sample), text)
}

func TestDecodeEncode(t *testing.T) {
	t.Run("utf-8 strips bom", func(t *testing.T) {
		text, err := Decode(append([]byte{0xEF, 0xBB, 0xBF}, "héllo"...), "utf-8")
		require.NoError(t, err)
		assert.Equal(t, "héllo", text)
	})

	t.Run("windows-1251", func(t *testing.T) {
		data, err := Encode("Привет", "windows-1251")
		require.NoError(t, err)
		assert.Equal(t, []byte{0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}, data)

		text, err := Decode(data, "windows-1251")
		require.NoError(t, err)
		assert.Equal(t, "Привет", text)
	})

	t.Run("iso-8859-1 label", func(t *testing.T) {
		text, err := Decode([]byte{0x63, 0x61, 0x66, 0xE9}, "ISO-8859-1")
		require.NoError(t, err)
		assert.Equal(t, "café", text)
	})

	t.Run("unknown charset", func(t *testing.T) {
		_, err := Decode([]byte("x"), "klingon-42")
		assert.Error(t, err)
		_, err = Encode("x", "klingon-42")
		assert.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	assert.Equal(t, UTF8, Resolve(nil, model.FileParams{}))
	assert.Equal(t, "windows-1252", Resolve(nil, model.FileParams{Charset: "windows-1252"}))
	assert.Equal(t, UTF8, Resolve(nil, model.FileParams{Charset: "windows-1252", Chardet: true}))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	params := model.DefaultParams()

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, "Hello\r\n", params))
	assert.Equal(t, "Hello\n", buf.String())

	text, err := Load(&buf, params)
	require.NoError(t, err)
	assert.Equal(t, "Hello\n", text)
}

func TestSaveCRLF(t *testing.T) {
	params := model.FileParams{Charset: "windows-1252", LineBreak: model.CRLF}

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, "a\nb\rc", params))
	assert.Equal(t, "a\r\nb\r\nc", buf.String())

	text, err := Load(bytes.NewReader(buf.Bytes()), params)
	require.NoError(t, err)
	assert.Equal(t, "a\r\nb\r\nc", text)
}

package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDetectUTF8(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"ascii", []byte("CNPJ;RAZAO SOCIAL\n123;ACME\n"), true},
		{"utf8 accents", []byte("CNPJ;RAZÃO SOCIAL\n123;AÇÚCAR UNIÃO\n"), true},
		{"latin1 accents", []byte("CNPJ;RAZ\xc3O SOCIAL\n123;A\xc7\xdaCAR\n"), false},
		{"empty", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "sample.csv", tt.data)
			got, err := DetectUTF8(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectUTF8_TruncatedRune(t *testing.T) {
	// A valid UTF-8 body whose sample window ends mid-rune must still
	// be detected as UTF-8.
	data := make([]byte, 0, sniffSize+4)
	for len(data) < sniffSize-1 {
		data = append(data, 'a')
	}
	data = append(data, []byte("ç")...) // 2-byte rune straddling the window
	path := writeTempFile(t, "sample.csv", data)

	got, err := DetectUTF8(path)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestTranscodeFile_Latin1(t *testing.T) {
	src := writeTempFile(t, "latin1.csv", []byte("NOME\nS\xc3O PAULO\n"))
	dst := filepath.Join(t.TempDir(), "utf8.csv")

	require.NoError(t, TranscodeFile(src, dst))

	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "NOME\nSÃO PAULO\n", string(out))
}

func TestTranscodeFile_UTF8Passthrough(t *testing.T) {
	content := "NOME\nSÃO PAULO\n"
	src := writeTempFile(t, "utf8src.csv", []byte(content))
	dst := filepath.Join(t.TempDir(), "utf8.csv")

	require.NoError(t, TranscodeFile(src, dst))

	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, string(out))
}

func TestTranscodeFile_MissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.csv")
	err := TranscodeFile(filepath.Join(t.TempDir(), "missing.csv"), dst)
	assert.Error(t, err)
}

func TestMergeCSV(t *testing.T) {
	dir := t.TempDir()
	p1 := writeTempFile(t, "part0.csv", []byte("A;B\n1;2\n"))
	p2 := writeTempFile(t, "part1.csv", []byte("A;B\n3;4\n"))
	p3 := writeTempFile(t, "part2.csv", []byte("A;B\n5;6\n"))
	dst := filepath.Join(dir, "merged.csv")

	require.NoError(t, mergeCSV([]string{p1, p2, p3}, dst))

	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "A;B\n1;2\n3;4\n5;6\n", string(out))
	assert.Equal(t, 1, strings.Count(string(out), "A;B"))
}

func TestMergeCSV_HeaderOnlyPart(t *testing.T) {
	dir := t.TempDir()
	p1 := writeTempFile(t, "part0.csv", []byte("A;B\n1;2\n"))
	p2 := writeTempFile(t, "part1.csv", []byte("A;B\n"))
	dst := filepath.Join(dir, "merged.csv")

	require.NoError(t, mergeCSV([]string{p1, p2}, dst))

	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "A;B\n1;2\n", string(out))
}

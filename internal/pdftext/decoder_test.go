package pdftext

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func pdfWithStreams(streams ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	for i, s := range streams {
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", i+1, len(s), s)
	}
	buf.WriteString("trailer\n<< /Root 1 0 R >>\n%%EOF\n")
	return buf.Bytes()
}

func flatePDF(t *testing.T, content string) []byte {
	t.Helper()
	var z bytes.Buffer
	w := zlib.NewWriter(&z)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n1 0 obj\n<< /Length ")
	fmt.Fprintf(&buf, "%d /Filter /FlateDecode >>\nstream\r\n", z.Len())
	buf.Write(z.Bytes())
	buf.WriteString("\r\nendstream\nendobj\n%%EOF\n")
	return buf.Bytes()
}

func TestLinesBasicOperators(t *testing.T) {
	t.Parallel()

	got := Lines(pdfWithStreams("BT (Base Set) Tj T* (1 Mike Trout) Tj ET"))
	require.Equal(t, []string{"Base Set", "1 Mike Trout"}, got)
}

func TestLinesFlateDecode(t *testing.T) {
	t.Parallel()

	content := "BT /F1 12 Tf 72 700 Td (Chrome Refractors) Tj 0 -14 Td (US1 Shohei Ohtani) Tj ET"
	got := Lines(flatePDF(t, content))
	require.Equal(t, []string{"Chrome Refractors", "US1 Shohei Ohtani"}, got)
}

func TestLinesCorruptFlateDegradesToRaw(t *testing.T) {
	t.Parallel()

	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Filter /FlateDecode >>\nstream\nq\nBT (Gold Parallel) Tj ET\nQ\nendstream\nendobj\n")
	require.Equal(t, []string{"Gold Parallel"}, Lines(pdf))
}

func TestLinesTJArrayKerning(t *testing.T) {
	t.Parallel()

	got := Lines(pdfWithStreams("BT [(12)-250(Aaron)-30(Judge)] TJ ET"))
	require.Equal(t, []string{"12 AaronJudge"}, got)
}

func TestLinesQuoteOperatorsFlush(t *testing.T) {
	t.Parallel()

	got := Lines(pdfWithStreams(`BT (Rookie Cards) ' (RC-1 Jackson Holliday) ' 0 0 (RC-2 Jackson Chourio) " ET`))
	require.Equal(t, []string{"Rookie Cards", "RC-1 Jackson Holliday", "RC-2 Jackson Chourio"}, got)
}

func TestLinesEscapesAndHex(t *testing.T) {
	t.Parallel()

	got := Lines(pdfWithStreams(
		`BT (Paren \(Gold\) \101\102C) Tj T* <4A6F7368> Tj T* (split \
line) Tj T* <FEFF00E9007400E9> Tj ET`,
	))
	require.Equal(t, []string{"Paren (Gold) ABC", "Josh", "split line", "été"}, got)
}

func TestLinesNestedParensAndLatin1(t *testing.T) {
	t.Parallel()

	got := Lines(pdfWithStreams("BT (Acu\\361a (Ronald) Jr.) Tj ET"))
	require.Equal(t, []string{"Acuña (Ronald) Jr."}, got)
}

func TestLinesDropsNumericAndComments(t *testing.T) {
	t.Parallel()

	got := Lines(pdfWithStreams("% header comment\nBT (12) Tj T* (Base Set) Tj T* (%not text) Tj ET"))
	require.Equal(t, []string{"Base Set"}, got)
}

func TestLinesSkipsImagesAndInlineImages(t *testing.T) {
	t.Parallel()

	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /XObject /Subtype /Image /Length 9 >>\nstream\n(Tj) Tj ET\nendstream\nendobj\n" +
		"2 0 obj\n<< /Length 10 >>\nstream\nBT (Inserts) Tj ET BI /W 1 /H 1 ID \x00(x) Tj EI BT (I-1 Ohtani) Tj ET\nendstream\nendobj\n")
	require.Equal(t, []string{"Inserts", "I-1 Ohtani"}, Lines(pdf))
}

func TestLinesMultipleStreamsInOrder(t *testing.T) {
	t.Parallel()

	got := Lines(pdfWithStreams("BT (Page One) Tj ET", "BT (Page Two) Tj ET"))
	require.Equal(t, []string{"Page One", "Page Two"}, got)
}

func TestLinesIdempotent(t *testing.T) {
	t.Parallel()

	pdf := flatePDF(t, "BT (Base Set) Tj T* (1 Mike Trout) Tj T* (2 Mookie Betts) Tj ET")
	require.Equal(t, Lines(pdf), Lines(pdf))
}

func TestLinesNoStreams(t *testing.T) {
	t.Parallel()

	require.Empty(t, Lines([]byte("not a pdf at all")))
	require.Empty(t, Lines(nil))
}

func TestText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Base Set\n1 Mike Trout", Text(pdfWithStreams("BT (Base Set) Tj T* (1 Mike Trout) Tj ET")))
}

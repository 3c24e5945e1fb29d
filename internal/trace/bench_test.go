package trace

import (
	"os"
	"path/filepath"
	"testing"
)

func benchEntry() Entry {
	return Entry{
		RunID:    "run-bench",
		Round:    4,
		Kind:     KindAuditVerdict,
		Who:      "amy",
		ActionID: "amy#3",
		Valid:    Bool(true),
		Effects:  []string{"reads(amy, x)", "writes(amy, y)"},
	}
}

func BenchmarkEmit_Single(b *testing.B) {
	l, err := Open(filepath.Join(b.TempDir(), "bench.jsonl"))
	if err != nil {
		b.Fatal(err)
	}
	defer l.Close()

	entry := benchEntry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		entry.Seq = uint64(i)
		l.Emit(entry)
	}
}

func BenchmarkRecorder(b *testing.B) {
	r := NewRecorder()
	entry := benchEntry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Emit(entry)
	}
}

func benchVerify(b *testing.B, n int) {
	b.Helper()
	path := filepath.Join(b.TempDir(), "bench.jsonl")
	l, err := Open(path)
	if err != nil {
		b.Fatal(err)
	}
	entry := benchEntry()
	for i := 0; i < n; i++ {
		entry.Seq = uint64(i)
		l.Emit(entry)
	}
	l.Close()

	info, _ := os.Stat(path)
	b.ResetTimer()
	b.SetBytes(info.Size())

	for i := 0; i < b.N; i++ {
		result := Verify(path)
		if !result.Valid {
			b.Fatal("invalid chain:", result.Error)
		}
	}
}

func BenchmarkVerify_1000(b *testing.B) {
	benchVerify(b, 1000)
}

func BenchmarkVerify_10000(b *testing.B) {
	benchVerify(b, 10000)
}

package lordn

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkAssemble(b *testing.B) {
	batches := make([]Batch, 0, 10)
	for i := 0; i < 10; i++ {
		records := make([]Record, 0, MaxBatchSize)
		for j := 0; j < MaxBatchSize; j++ {
			// Every tenth line repeats a line from the previous batch.
			n := i*MaxBatchSize + j
			if j%10 == 0 && i > 0 {
				n -= MaxBatchSize
			}
			payload := "roid-" + strconv.Itoa(n) + ",example" + strconv.Itoa(n) + ".test,notice,9999,2026-01-01T00:00:00.000Z"
			records = append(records, Record{Payload: []byte(payload)})
		}
		batches = append(batches, Batch{Records: records})
	}
	now := time.Now()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		report := Assemble(batches, now, ColumnsClaims)
		_ = report.Bytes()
	}
}

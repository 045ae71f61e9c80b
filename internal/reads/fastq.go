package reads

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

const maxFastqLine = 1024 * 1024

type fastqRecord struct {
	name  string
	seq   string
	quals string
}

func readFastq(path string) ([]fastqRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	var rd io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "gunzip %s", path)
		}
		defer gz.Close()
		rd = gz
	}
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), maxFastqLine)
	var recs []fastqRecord
	line := 0
	for sc.Scan() {
		name := sc.Text()
		line++
		if name == "" {
			continue
		}
		if !strings.HasPrefix(name, "@") {
			return nil, errors.Errorf("%s:%d: expected @ header, got %q", path, line, name)
		}
		if !sc.Scan() {
			return nil, errors.Errorf("%s:%d: record truncated after header", path, line)
		}
		seq := sc.Text()
		line++
		if !sc.Scan() || !strings.HasPrefix(sc.Text(), "+") {
			return nil, errors.Errorf("%s:%d: expected + separator", path, line+1)
		}
		line++
		if !sc.Scan() {
			return nil, errors.Errorf("%s:%d: record truncated before quals", path, line)
		}
		quals := sc.Text()
		line++
		if len(quals) != len(seq) {
			return nil, errors.Errorf("%s:%d: %d quals for %d bases", path, line, len(quals), len(seq))
		}
		recs = append(recs, fastqRecord{name: name, seq: seq, quals: quals})
	}
	return recs, errors.Wrapf(sc.Err(), "reading %s", path)
}

// loadEntry appends one entry's pairs to bank, numbering pairs upward
// from idOffset+1; every rank scans the same files and keeps pair i when
// i mod N lands on it, so banks are disjoint and cover every pair.
// Returns the number of pairs the entry holds.
func loadEntry(r *comm.Rank, bank *PackedReads, entry string, idOffset int64) (int64, error) {
	parts := strings.SplitN(entry, ":", 2)
	recs1, err := readFastq(parts[0])
	if err != nil {
		return 0, err
	}
	var recs2 []fastqRecord
	if len(parts) == 2 {
		recs2, err = readFastq(parts[1])
		if err != nil {
			return 0, err
		}
		if len(recs1) != len(recs2) {
			return 0, errors.Errorf("%s has %d records but %s has %d", parts[0], len(recs1), parts[1], len(recs2))
		}
	}
	for i := range recs1 {
		if i%r.N() != r.Me() {
			continue
		}
		var seq2, quals2 string
		if recs2 != nil {
			seq2, quals2 = recs2[i].seq, recs2[i].quals
		}
		if err := bank.AddPair(idOffset+int64(i+1), recs1[i].seq, recs1[i].quals, seq2, quals2); err != nil {
			return 0, errors.Wrapf(err, "%s record %d", parts[0], i+1)
		}
	}
	util.RLogV(r.Me(), "loaded %d local reads of %d pairs from %s", bank.LocalNumReads(), len(recs1), entry)
	return int64(len(recs1)), nil
}

// LoadFastq loads one FASTQ file ("reads.fq") or an interleaved-by-file
// pair ("r1.fq:r2.fq"), gzipped or not, into this rank's bank.
func LoadFastq(r *comm.Rank, entries string, qualOffset int) (*PackedReads, error) {
	bank := NewPackedReads(qualOffset)
	if _, err := loadEntry(r, bank, entries, 0); err != nil {
		return nil, err
	}
	return bank, nil
}

// LoadAll loads every entry into one bank, numbering pairs continuously
// across entries so pair ids stay globally unique.
func LoadAll(r *comm.Rank, entries []string, qualOffset int) (*PackedReads, error) {
	bank := NewPackedReads(qualOffset)
	var offset int64
	for _, entry := range entries {
		n, err := loadEntry(r, bank, entry, offset)
		if err != nil {
			return nil, err
		}
		offset += n
	}
	return bank, nil
}

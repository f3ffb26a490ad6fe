package live

import "agrihill-backend/internal/domain"

// Merge combines the remote snapshot with transient sources given in
// decreasing priority. Transient records are listed ahead of remote ones, but
// an id belongs to its highest-priority holder and the remote snapshot
// outranks every transient source, so a pending record disappears as soon as
// the store reflects it. The result never holds two records with one id.
func Merge(remote []domain.Record, transient ...[]domain.Record) []domain.Record {
	owner := make(map[string]int, len(remote))
	size := len(remote)
	claim := func(src int, recs []domain.Record) {
		for i := range recs {
			if _, taken := owner[recs[i].ID]; !taken {
				owner[recs[i].ID] = src
			}
		}
	}
	claim(0, remote)
	for i, recs := range transient {
		claim(i+1, recs)
		size += len(recs)
	}

	out := make([]domain.Record, 0, size)
	emitted := make(map[string]bool, len(owner))
	emit := func(src int, recs []domain.Record) {
		for i := range recs {
			id := recs[i].ID
			if owner[id] != src || emitted[id] {
				continue
			}
			emitted[id] = true
			out = append(out, recs[i])
		}
	}
	for i, recs := range transient {
		emit(i+1, recs)
	}
	emit(0, remote)
	return out
}

// Package playback owns the play queue and drives an audio [Engine] with stream URLs signed at play time.
package playback

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

// RepeatMode controls what happens at the ends of the queue.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "off"
	}
}

// ParseRepeatMode parses "off", "all" or "one"; "" is off.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch s {
	case "", "off":
		return RepeatOff, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	default:
		return RepeatOff, fmt.Errorf("%w: unknown repeat mode %q", shared.ErrInvalidArgument, s)
	}
}

// entry gives every queued track a unique identity so duplicates survive shuffling.
type entry struct {
	uid   uint64
	track models.Track
}

// Queue is an ordered list of tracks with a cursor. The cursor is -1 only when the queue is empty.
//
// While shuffled, order is the play order and original keeps the order tracks were queued in.
type Queue struct {
	mu       sync.Mutex
	order    []entry
	original []entry
	cursor   int
	shuffled bool
	repeat   RepeatMode
	nextUID  uint64
	rng      *rand.Rand
}

// NewQueue returns an empty queue. A nil rng is seeded from the clock.
func NewQueue(rng *rand.Rand) *Queue {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Queue{cursor: -1, rng: rng}
}

func (q *Queue) wrap(tracks []models.Track) []entry {
	entries := make([]entry, 0, len(tracks))
	for _, t := range tracks {
		q.nextUID++
		entries = append(entries, entry{uid: q.nextUID, track: t})
	}
	return entries
}

func unwrap(entries []entry) []models.Track {
	tracks := make([]models.Track, 0, len(entries))
	for _, e := range entries {
		tracks = append(tracks, e.track)
	}
	return tracks
}

// SetQueue replaces the queue and moves the cursor to start. An empty tracks clears the queue.
// start outside the tracks fails with [shared.ErrIndex] and leaves the queue untouched.
func (q *Queue) SetQueue(tracks []models.Track, start int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(tracks) == 0 {
		if start != 0 && start != -1 {
			return fmt.Errorf("%w: start %d for an empty queue", shared.ErrIndex, start)
		}
		q.order, q.original, q.cursor = nil, nil, -1
		return nil
	}
	if start < 0 || start >= len(tracks) {
		return fmt.Errorf("%w: start %d not in [0, %d)", shared.ErrIndex, start, len(tracks))
	}

	q.order = q.wrap(tracks)
	q.cursor = start
	q.original = nil
	if q.shuffled {
		q.original = slices.Clone(q.order)
		q.shuffleAroundCursor()
	}
	return nil
}

// Current returns the track at the cursor.
func (q *Queue) Current() (models.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor < 0 {
		return models.Track{}, false
	}
	return q.order[q.cursor].track, true
}

// Cursor returns the cursor, or -1 for an empty queue.
func (q *Queue) Cursor() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// Tracks returns the tracks in play order.
func (q *Queue) Tracks() []models.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return unwrap(q.order)
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Repeat returns the repeat mode.
func (q *Queue) Repeat() RepeatMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.repeat
}

// SetRepeat changes the repeat mode.
func (q *Queue) SetRepeat(mode RepeatMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeat = mode
}

// Shuffled reports whether shuffle is on.
func (q *Queue) Shuffled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffled
}

// Next advances the cursor and returns the new current track. It returns false, leaving the cursor where it is,
// at the end of the queue under [RepeatOff]. Under [RepeatOne] the cursor stays and the same track is returned.
func (q *Queue) Next() (models.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cursor < 0 {
		return models.Track{}, false
	}
	switch {
	case q.repeat == RepeatOne:
	case q.cursor < len(q.order)-1:
		q.cursor++
	case q.repeat == RepeatAll:
		q.cursor = 0
	default:
		return models.Track{}, false
	}
	return q.order[q.cursor].track, true
}

// Previous moves the cursor back. At index 0 it wraps under [RepeatAll] and is a no-op under [RepeatOff].
func (q *Queue) Previous() (models.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cursor < 0 {
		return models.Track{}, false
	}
	switch {
	case q.repeat == RepeatOne:
	case q.cursor > 0:
		q.cursor--
	case q.repeat == RepeatAll:
		q.cursor = len(q.order) - 1
	default:
		return models.Track{}, false
	}
	return q.order[q.cursor].track, true
}

// Skip moves the cursor to index.
func (q *Queue) Skip(index int) (models.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.order) {
		return models.Track{}, fmt.Errorf("%w: %d not in [0, %d)", shared.ErrIndex, index, len(q.order))
	}
	q.cursor = index
	return q.order[index].track, nil
}

// Shuffle turns shuffle on or off. Turning it on permutes every track except the current one, which keeps its
// position. Turning it off restores the queued order and moves the cursor to wherever the current track is.
func (q *Queue) Shuffle(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if enabled == q.shuffled {
		return
	}
	q.shuffled = enabled

	if enabled {
		q.original = slices.Clone(q.order)
		q.shuffleAroundCursor()
		return
	}

	current := q.currentUID()
	q.order = q.original
	q.original = nil
	q.cursor = q.indexOf(q.order, current)
}

// shuffleAroundCursor permutes order in place, keeping the element at the cursor fixed. Caller holds mu.
func (q *Queue) shuffleAroundCursor() {
	rest := make([]int, 0, len(q.order))
	for i := range q.order {
		if i != q.cursor {
			rest = append(rest, i)
		}
	}
	picked := make([]entry, len(rest))
	for i, idx := range rest {
		picked[i] = q.order[idx]
	}
	q.rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	for i, idx := range rest {
		q.order[idx] = picked[i]
	}
}

func (q *Queue) currentUID() uint64 {
	if q.cursor < 0 {
		return 0
	}
	return q.order[q.cursor].uid
}

func (q *Queue) indexOf(entries []entry, uid uint64) int {
	if len(entries) == 0 {
		return -1
	}
	for i, e := range entries {
		if e.uid == uid {
			return i
		}
	}
	return 0
}

// Insert adds tracks before index; index == Len() appends. Inserting at or before the cursor shifts it so the
// current track stays current. While shuffled, inserted tracks are appended to the queued order.
func (q *Queue) Insert(index int, tracks ...models.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.insert(index, tracks)
}

// Append adds tracks at the end.
func (q *Queue) Append(tracks ...models.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.insert(len(q.order), tracks)
}

func (q *Queue) insert(index int, tracks []models.Track) error {
	if index < 0 || index > len(q.order) {
		return fmt.Errorf("%w: insert at %d not in [0, %d]", shared.ErrIndex, index, len(q.order))
	}
	if len(tracks) == 0 {
		return nil
	}

	entries := q.wrap(tracks)
	q.order = slices.Insert(q.order, index, entries...)
	if q.shuffled {
		q.original = append(q.original, entries...)
	}

	switch {
	case q.cursor < 0:
		q.cursor = 0
	case index <= q.cursor:
		q.cursor += len(entries)
	}
	return nil
}

// Remove deletes the track at index. Removing before the cursor shifts it back; removing the current track makes
// the following one current, or the previous one when it was last.
func (q *Queue) Remove(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.order) {
		return fmt.Errorf("%w: remove %d not in [0, %d)", shared.ErrIndex, index, len(q.order))
	}

	uid := q.order[index].uid
	q.order = slices.Delete(q.order, index, index+1)
	if q.shuffled {
		q.original = slices.DeleteFunc(q.original, func(e entry) bool { return e.uid == uid })
	}

	switch {
	case len(q.order) == 0:
		q.cursor = -1
	case index < q.cursor:
		q.cursor--
	case q.cursor >= len(q.order):
		q.cursor = len(q.order) - 1
	}
	return nil
}

// Move relocates the track at from to to. The cursor follows the current track.
func (q *Queue) Move(from, to int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.order)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d to %d not in [0, %d)", shared.ErrIndex, from, to, n)
	}
	if from == to {
		return nil
	}

	current := q.currentUID()
	moved := q.order[from]
	q.order = slices.Delete(q.order, from, from+1)
	q.order = slices.Insert(q.order, to, moved)
	q.cursor = q.indexOf(q.order, current)
	return nil
}

// Clear empties the queue. Shuffle and repeat settings are kept.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.order, q.original, q.cursor = nil, nil, -1
}

// Snapshot captures the queue for persistence. ServerID is left for the caller.
func (q *Queue) Snapshot() models.QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := models.QueueSnapshot{
		Tracks:   unwrap(q.order),
		Cursor:   q.cursor,
		Shuffled: q.shuffled,
		Repeat:   q.repeat.String(),
	}
	if q.shuffled {
		snap.Original = unwrap(q.original)
	}
	return snap
}

// Restore replaces the queue with a snapshot.
func (q *Queue) Restore(snap models.QueueSnapshot) error {
	repeat, err := ParseRepeatMode(snap.Repeat)
	if err != nil {
		return err
	}
	if len(snap.Tracks) == 0 {
		snap.Cursor = -1
	} else if snap.Cursor < 0 || snap.Cursor >= len(snap.Tracks) {
		return fmt.Errorf("%w: snapshot cursor %d not in [0, %d)", shared.ErrIndex, snap.Cursor, len(snap.Tracks))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.order = q.wrap(snap.Tracks)
	q.cursor = snap.Cursor
	q.repeat = repeat
	q.shuffled = snap.Shuffled
	q.original = nil

	if q.shuffled {
		q.original = matchOriginal(q.order, snap.Original)
	}
	return nil
}

// matchOriginal rebuilds the queued order from tracks, reusing the uids in order so shuffle-off finds the
// current entry. Tracks are matched by id, first unused match wins.
func matchOriginal(order []entry, original []models.Track) []entry {
	if len(original) != len(order) {
		return slices.Clone(order)
	}

	used := make([]bool, len(order))
	out := make([]entry, 0, len(original))
	for _, t := range original {
		found := false
		for i, e := range order {
			if !used[i] && e.track.ID == t.ID {
				used[i] = true
				out = append(out, e)
				found = true
				break
			}
		}
		if !found {
			return slices.Clone(order)
		}
	}
	return out
}

package p2p

import (
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	klog "github.com/ltlmaps/leap-contracts/internal/log"
)

// Ban policy.
const (
	BanThreshold = 100
	BanDuration  = 24 * time.Hour

	// A peer is forgiven ScoreDecay points for every ScoreDecayInterval
	// without a new offense.
	ScoreDecay         = 10
	ScoreDecayInterval = time.Hour

	banPruneInterval = 10 * time.Minute
)

// Penalties per offense.
const (
	PenaltyMalformed     = 25  // undecodable or structurally invalid message
	PenaltyBadSignature  = 50  // signature does not recover to the claimed signer
	PenaltyInvalidSeal   = 20  // seal that fails authorization
	PenaltyHandshakeFail = 100 // genesis or network mismatch; bans at once
)

// offenseScore is a peer's running score as of its last offense.
type offenseScore struct {
	points int
	last   time.Time
}

// at returns the score left after decay up to now.
func (s offenseScore) at(now time.Time) int {
	forgiven := int(now.Sub(s.last)/ScoreDecayInterval) * ScoreDecay
	if forgiven >= s.points {
		return 0
	}
	return s.points - forgiven
}

// BanManager scores misbehaving peers and bans those that cross
// BanThreshold.
type BanManager struct {
	mu     sync.Mutex
	scores map[peer.ID]offenseScore
	bans   map[peer.ID]*BanRecord
	store  *BanStore // nil disables persistence

	disconnect func(peer.ID) // nil in unit tests
	now        func() time.Time
}

// NewBanManager returns a ban manager. store and disconnect may be nil.
func NewBanManager(store *BanStore, disconnect func(peer.ID)) *BanManager {
	return &BanManager{
		scores:     make(map[peer.ID]offenseScore),
		bans:       make(map[peer.ID]*BanRecord),
		store:      store,
		disconnect: disconnect,
		now:        time.Now,
	}
}

// LoadBans restores the unexpired bans kept in the store and returns how
// many are active.
func (bm *BanManager) LoadBans() int {
	if bm.store == nil {
		return 0
	}
	if _, err := bm.store.PruneExpired(); err != nil {
		klog.P2P.Warn().Err(err).Msg("Prune expired bans failed")
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	now := bm.now()
	bm.store.ForEach(func(rec *BanRecord) error {
		id, err := peer.Decode(rec.ID)
		if err == nil && !rec.expiredAt(now) {
			bm.bans[id] = rec
		}
		return nil
	})
	return len(bm.bans)
}

// RecordOffense charges id penalty points and bans it once the decayed
// score reaches BanThreshold. It reports whether this offense caused a
// ban.
func (bm *BanManager) RecordOffense(id peer.ID, penalty int, reason string) bool {
	bm.mu.Lock()
	now := bm.now()
	if rec, ok := bm.bans[id]; ok && !rec.expiredAt(now) {
		bm.mu.Unlock()
		return false
	}

	score := bm.scores[id].at(now) + penalty
	if score < BanThreshold {
		bm.scores[id] = offenseScore{points: score, last: now}
		bm.mu.Unlock()
		return false
	}

	rec := &BanRecord{
		ID:        id.String(),
		Reason:    reason,
		Score:     score,
		BannedAt:  now.Unix(),
		ExpiresAt: now.Add(BanDuration).Unix(),
	}
	bm.bans[id] = rec
	delete(bm.scores, id)
	bm.mu.Unlock()

	if bm.store != nil {
		if err := bm.store.Put(rec); err != nil {
			klog.P2P.Warn().Err(err).Str("peer", shortID(id)).Msg("Persist ban failed")
		}
	}
	klog.P2P.Warn().
		Str("peer", shortID(id)).
		Str("reason", reason).
		Int("score", score).
		Msg("Peer banned")

	if bm.disconnect != nil {
		go bm.disconnect(id)
	}
	return true
}

// Score returns id's current offense score after decay. It is zero for
// unknown and banned peers.
func (bm *BanManager) Score(id peer.ID) int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.scores[id].at(bm.now())
}

// IsBanned reports whether id is under an active ban. A lapsed ban is
// dropped on the way.
func (bm *BanManager) IsBanned(id peer.ID) bool {
	bm.mu.Lock()
	rec, ok := bm.bans[id]
	if !ok {
		bm.mu.Unlock()
		return false
	}
	if !rec.expiredAt(bm.now()) {
		bm.mu.Unlock()
		return true
	}
	delete(bm.bans, id)
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.Delete(id)
	}
	return false
}

// Unban lifts any ban on id and clears its score.
func (bm *BanManager) Unban(id peer.ID) {
	bm.mu.Lock()
	delete(bm.bans, id)
	delete(bm.scores, id)
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.Delete(id)
	}
}

// BanList returns the active bans, oldest first.
func (bm *BanManager) BanList() []BanRecord {
	bm.mu.Lock()
	now := bm.now()
	list := make([]BanRecord, 0, len(bm.bans))
	for _, rec := range bm.bans {
		if !rec.expiredAt(now) {
			list = append(list, *rec)
		}
	}
	bm.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].BannedAt != list[j].BannedAt {
			return list[i].BannedAt < list[j].BannedAt
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// RunPruneLoop drops lapsed bans and fully decayed scores until done is
// closed.
func (bm *BanManager) RunPruneLoop(done <-chan struct{}) {
	ticker := time.NewTicker(banPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			bm.prune()
		}
	}
}

func (bm *BanManager) prune() {
	bm.mu.Lock()
	now := bm.now()
	for id, rec := range bm.bans {
		if rec.expiredAt(now) {
			delete(bm.bans, id)
		}
	}
	for id, s := range bm.scores {
		if s.at(now) == 0 {
			delete(bm.scores, id)
		}
	}
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.PruneExpired()
	}
}

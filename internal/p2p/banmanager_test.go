package p2p

import (
	"crypto/rand"
	"testing"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ltlmaps/leap-contracts/internal/storage"
)

func TestBanManager_ScoreAccumulation(t *testing.T) {
	bm := NewBanManager(nil, nil)

	id := peer.ID("test-peer")

	// 20 points should not trigger ban.
	bm.RecordOffense(id, PenaltyInvalidSeal, "rejected seal 1")
	if bm.IsBanned(id) {
		t.Error("peer should not be banned after 20 points")
	}

	// Another 20 points (total 40), still not banned.
	bm.RecordOffense(id, PenaltyInvalidSeal, "rejected seal 2")
	if bm.IsBanned(id) {
		t.Error("peer should not be banned after 40 points")
	}
	if got := bm.Score(id); got != 2*PenaltyInvalidSeal {
		t.Errorf("Score = %d, want %d", got, 2*PenaltyInvalidSeal)
	}
	if got := bm.Score(peer.ID("other")); got != 0 {
		t.Errorf("Score(unknown) = %d, want 0", got)
	}
}

func TestBanManager_ThresholdBan(t *testing.T) {
	bm := NewBanManager(nil, nil)

	id := peer.ID("test-peer")

	// 50 + 50 = 100 = BanThreshold → banned.
	bm.RecordOffense(id, PenaltyBadSignature, "bad heartbeat sig 1")
	bm.RecordOffense(id, PenaltyBadSignature, "bad heartbeat sig 2")

	if !bm.IsBanned(id) {
		t.Error("peer should be banned at threshold")
	}
}

func TestBanManager_InstantBan(t *testing.T) {
	bm := NewBanManager(nil, nil)

	id := peer.ID("test-peer")

	// 100 points in one shot = instant ban.
	bm.RecordOffense(id, PenaltyHandshakeFail, "genesis mismatch")

	if !bm.IsBanned(id) {
		t.Error("peer should be banned after handshake fail")
	}
}

func TestBanManager_IsBanned_NotBanned(t *testing.T) {
	bm := NewBanManager(nil, nil)

	if bm.IsBanned(peer.ID("unknown")) {
		t.Error("unknown peer should not be banned")
	}
}

func TestBanManager_Unban(t *testing.T) {
	bm := NewBanManager(nil, nil)

	id := peer.ID("test-peer")
	bm.RecordOffense(id, PenaltyHandshakeFail, "bad handshake")

	if !bm.IsBanned(id) {
		t.Fatal("peer should be banned")
	}

	bm.Unban(id)
	if bm.IsBanned(id) {
		t.Error("peer should not be banned after Unban")
	}
}

func TestBanManager_BanList(t *testing.T) {
	bm := NewBanManager(nil, nil)

	bm.RecordOffense(peer.ID("peer-a"), PenaltyHandshakeFail, "bad")
	bm.RecordOffense(peer.ID("peer-b"), PenaltyHandshakeFail, "bad")

	list := bm.BanList()
	if len(list) != 2 {
		t.Errorf("expected 2 bans, got %d", len(list))
	}
}

func TestBanManager_Persistence(t *testing.T) {
	db := storage.NewMemory()
	store := NewBanStore(db)
	bm := NewBanManager(store, nil)

	// Use a real peer ID so that String()/Decode() roundtrips correctly.
	id := generateTestPeerID(t)
	bm.RecordOffense(id, PenaltyHandshakeFail, "genesis mismatch")

	if !bm.IsBanned(id) {
		t.Fatal("peer should be banned")
	}

	// Create a new BanManager from the same store.
	bm2 := NewBanManager(store, nil)
	bm2.LoadBans()

	if !bm2.IsBanned(id) {
		t.Error("ban should survive reload from store")
	}
}

func generateTestPeerID(t *testing.T) peer.ID {
	t.Helper()
	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("peer id from key: %v", err)
	}
	return id
}

func TestBanManager_DuplicateOffense_AlreadyBanned(t *testing.T) {
	bm := NewBanManager(nil, nil)

	id := peer.ID("test-peer")
	bm.RecordOffense(id, PenaltyHandshakeFail, "bad handshake")

	// Recording another offense on a banned peer should be a no-op.
	bm.RecordOffense(id, PenaltyMalformed, "malformed seal")

	list := bm.BanList()
	if len(list) != 1 {
		t.Errorf("expected 1 ban, got %d", len(list))
	}
}

func TestBanManager_MultiPeer(t *testing.T) {
	bm := NewBanManager(nil, nil)

	// Peer A gets banned, peer B doesn't.
	bm.RecordOffense(peer.ID("a"), PenaltyHandshakeFail, "bad")
	bm.RecordOffense(peer.ID("b"), PenaltyInvalidSeal, "rejected seal")

	if !bm.IsBanned(peer.ID("a")) {
		t.Error("peer a should be banned")
	}
	if bm.IsBanned(peer.ID("b")) {
		t.Error("peer b should not be banned")
	}
}

func TestBanManager_RecordOffense_ReportsBan(t *testing.T) {
	bm := NewBanManager(nil, nil)
	id := peer.ID("test-peer")

	if bm.RecordOffense(id, PenaltyBadSignature, "bad sig") {
		t.Error("first offense should not report a ban")
	}
	if !bm.RecordOffense(id, PenaltyBadSignature, "bad sig") {
		t.Error("offense crossing the threshold should report a ban")
	}
	if bm.RecordOffense(id, PenaltyBadSignature, "bad sig") {
		t.Error("offense on an already banned peer should not report a ban")
	}
	if got := bm.Score(id); got != 0 {
		t.Errorf("Score after ban = %d, want 0", got)
	}
}

func TestBanManager_ScoreDecay(t *testing.T) {
	bm := NewBanManager(nil, nil)
	now := time.Unix(1_700_000_000, 0)
	bm.now = func() time.Time { return now }
	id := peer.ID("test-peer")

	bm.RecordOffense(id, PenaltyBadSignature, "bad sig")

	now = now.Add(3 * ScoreDecayInterval)
	if got, want := bm.Score(id), PenaltyBadSignature-3*ScoreDecay; got != want {
		t.Errorf("Score after 3 intervals = %d, want %d", got, want)
	}

	// 20 + 50 stays under the threshold that 50 + 50 would have reached.
	if bm.RecordOffense(id, PenaltyBadSignature, "bad sig") {
		t.Fatal("decayed score should not reach the threshold")
	}

	now = now.Add(24 * ScoreDecayInterval)
	if got := bm.Score(id); got != 0 {
		t.Errorf("Score after full decay = %d, want 0", got)
	}
	bm.prune()
	bm.mu.Lock()
	_, kept := bm.scores[id]
	bm.mu.Unlock()
	if kept {
		t.Error("prune kept a fully decayed score")
	}
}

func TestBanManager_BanLapses(t *testing.T) {
	bm := NewBanManager(nil, nil)
	now := time.Unix(1_700_000_000, 0)
	bm.now = func() time.Time { return now }
	id := peer.ID("test-peer")

	bm.RecordOffense(id, PenaltyHandshakeFail, "genesis mismatch")
	now = now.Add(BanDuration - time.Second)
	if !bm.IsBanned(id) {
		t.Fatal("ban lapsed early")
	}
	now = now.Add(time.Second)
	if bm.IsBanned(id) {
		t.Error("ban outlived BanDuration")
	}
	if list := bm.BanList(); list == nil || len(list) != 0 {
		t.Errorf("BanList = %v, want empty", list)
	}
}

func TestBanManager_Disconnects(t *testing.T) {
	dropped := make(chan peer.ID, 1)
	bm := NewBanManager(nil, func(id peer.ID) { dropped <- id })
	id := peer.ID("test-peer")

	bm.RecordOffense(id, PenaltyHandshakeFail, "genesis mismatch")

	select {
	case got := <-dropped:
		if got != id {
			t.Errorf("disconnected %s, want %s", got, id)
		}
	case <-time.After(time.Second):
		t.Fatal("banned peer was not disconnected")
	}
}

func TestBanManager_LoadBans_SkipsExpired(t *testing.T) {
	store := NewBanStore(storage.NewMemory())
	live, lapsed := generateTestPeerID(t), generateTestPeerID(t)
	now := time.Now()
	store.Put(&BanRecord{ID: live.String(), BannedAt: now.Unix(), ExpiresAt: now.Add(time.Hour).Unix()})
	store.Put(&BanRecord{ID: lapsed.String(), BannedAt: now.Add(-2 * BanDuration).Unix(), ExpiresAt: now.Add(-BanDuration).Unix()})

	bm := NewBanManager(store, nil)
	if got := bm.LoadBans(); got != 1 {
		t.Errorf("LoadBans = %d, want 1", got)
	}
	if !bm.IsBanned(live) {
		t.Error("live ban not restored")
	}
	if bm.IsBanned(lapsed) {
		t.Error("lapsed ban restored")
	}
	if _, err := store.Get(lapsed); err == nil {
		t.Error("lapsed ban left in store")
	}
}

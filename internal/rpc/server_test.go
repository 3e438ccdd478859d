package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ltlmaps/leap-contracts/config"
	"github.com/ltlmaps/leap-contracts/internal/consensus"
	klog "github.com/ltlmaps/leap-contracts/internal/log"
	"github.com/ltlmaps/leap-contracts/internal/metrics"
	"github.com/ltlmaps/leap-contracts/internal/parent"
	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/internal/token"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// testEnv holds all components for an RPC test.
type testEnv struct {
	server    *Server
	engine    *consensus.Engine
	ledger    *token.Store
	genesis   *config.Genesis
	hasher    crypto.Hasher
	opKey     *crypto.PrivateKey
	genesisID types.Hash
	url       string
	nonces    map[types.Address]uint64
}

// setupTestEnv starts a server over an engine with epoch length 4, block
// reward 10 and one operator holding a 4000 stake out of a 5100 supply,
// which allows it three blocks per epoch.
func setupTestEnv(t *testing.T, rpcCfg ...config.RPCConfig) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	opKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	gen := &config.Genesis{
		ChainID:   "leap-test-rpc",
		ChainName: "RPC Test",
		Token:     config.TokenConfig{Name: "Leap", Symbol: "LEAP", Decimals: config.Decimals},
		Protocol: config.ProtocolConfig{
			EpochLength:     4,
			BlockReward:     10,
			ParentBlockTime: 12,
			Hash:            crypto.HashBlake3,
		},
	}
	hasher, err := gen.Hasher()
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	db := storage.NewMemory()
	ledger := token.NewStore(storage.NewPrefixDB(db, []byte("tok/")))
	if err := ledger.SetMetadata(&token.Metadata{Name: "Leap", Symbol: "LEAP", Decimals: config.Decimals}); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	bridge := gen.BridgeAddress()
	if err := ledger.Mint(opKey.Address(), 4100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(bridge, 1000); err != nil {
		t.Fatalf("mint pool: %v", err)
	}

	engine, err := consensus.New(storage.NewPrefixDB(db, []byte("br/")), consensus.Config{
		Params:  gen.Params(),
		Address: bridge,
		Ledger:  ledger,
		Parent:  parent.NewManual(1000, 1_000_000),
		Hasher:  hasher,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	genesisID, err := gen.GenesisBlockID()
	if err != nil {
		t.Fatalf("genesis id: %v", err)
	}
	if err := engine.Init(genesisID); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := ledger.Approve(opKey.Address(), bridge, 4000); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := engine.Join(opKey.Address(), 4000); err != nil {
		t.Fatalf("join: %v", err)
	}

	srv := New("127.0.0.1:0", engine, ledger, gen, storage.NewPrefixDB(db, []byte("rpc/")), nil, rpcCfg...)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server:    srv,
		engine:    engine,
		ledger:    ledger,
		genesis:   gen,
		hasher:    hasher,
		opKey:     opKey,
		genesisID: genesisID,
		url:       fmt.Sprintf("http://%s/", srv.Addr()),
		nonces:    make(map[types.Address]uint64),
	}
}

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      1,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// mustResult fails on an error response and decodes the result into out.
func mustResult(t *testing.T, resp Response, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func wantCode(t *testing.T, resp Response, code int) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error code %d, got result %v", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Errorf("error code = %d (%s), want %d", resp.Error.Code, resp.Error.Message, code)
	}
}

// signed signs params for key with the key's next nonce and calls method.
func (env *testEnv) signed(t *testing.T, key *crypto.PrivateKey, method string, params Signed) Response {
	t.Helper()
	addr := key.Address()
	env.nonces[addr]++
	if err := SignCall(key, env.genesis.ChainID, method, env.nonces[addr], params); err != nil {
		t.Fatalf("sign %s: %v", method, err)
	}
	return rpcCall(t, env.url, method, params)
}

func (env *testEnv) sealParams(key *crypto.PrivateKey, prev types.Hash, height uint64, root types.Hash) SubmitBlockParam {
	s := block.Sign(env.hasher, key, prev, height, root)
	return SubmitBlockParam{
		Prev:      prev.String(),
		Root:      root.String(),
		Signature: hex.EncodeToString(s.Signature),
	}
}

// mine submits blocks by the operator on top of the tip up to height.
func (env *testEnv) mine(t *testing.T, height uint64) []types.Hash {
	t.Helper()
	tip, err := env.engine.GetHighest()
	if err != nil {
		t.Fatalf("highest: %v", err)
	}
	ids := []types.Hash{tip.ID}
	for h := tip.Height + 1; h <= height; h++ {
		root := env.hasher.Sum([]byte("root"), ids[len(ids)-1][:])
		var res SubmitResult
		mustResult(t, rpcCall(t, env.url, "bridge_submitBlock", env.sealParams(env.opKey, ids[len(ids)-1], h, root)), &res)
		id, _ := types.HexToHash(res.ID)
		ids = append(ids, id)
	}
	return ids
}

// ── Queries ─────────────────────────────────────────────────────────────

func TestRPC_BridgeGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	var result InfoResult
	mustResult(t, rpcCall(t, env.url, "bridge_getInfo", nil), &result)

	if result.ChainID != "leap-test-rpc" {
		t.Errorf("chain_id = %q, want %q", result.ChainID, "leap-test-rpc")
	}
	if result.TipHeight != 0 || result.TipID != env.genesisID.String() {
		t.Errorf("tip = %s@%d, want genesis", result.TipID, result.TipHeight)
	}
	if result.Operators != 1 {
		t.Errorf("operators = %d, want 1", result.Operators)
	}
	if result.EpochLength != 4 || result.BlockReward != 10 {
		t.Errorf("params = %d/%d", result.EpochLength, result.BlockReward)
	}
	if result.TotalSupply != 5100 {
		t.Errorf("total_supply = %d, want 5100", result.TotalSupply)
	}
	if result.BridgeAddress != env.genesis.BridgeAddress().String() {
		t.Errorf("bridge_address = %s", result.BridgeAddress)
	}
	if result.Hash != crypto.HashBlake3 {
		t.Errorf("hash = %s", result.Hash)
	}
}

func TestRPC_BridgeGetBlockByHeight_Genesis(t *testing.T) {
	env := setupTestEnv(t)

	var result BlockResult
	mustResult(t, rpcCall(t, env.url, "bridge_getBlockByHeight", HeightParam{Height: 0}), &result)
	if result.ID != env.genesisID.String() {
		t.Errorf("id = %s, want genesis", result.ID)
	}
	if result.Parent != "" || result.Operator != "" {
		t.Errorf("root block has parent %q operator %q", result.Parent, result.Operator)
	}

	wantCode(t, rpcCall(t, env.url, "bridge_getBlockByHeight", HeightParam{Height: 5}), CodeNotFound)
}

func TestRPC_BridgeGetBlock_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	fake := hex.EncodeToString(make([]byte, 32))
	wantCode(t, rpcCall(t, env.url, "bridge_getBlock", HashParam{Hash: fake}), CodeNotFound)
	wantCode(t, rpcCall(t, env.url, "bridge_getBlock", HashParam{Hash: "zz"}), CodeInvalidParams)
	wantCode(t, rpcCall(t, env.url, "bridge_getBlock", HashParam{}), CodeInvalidParams)
}

func TestRPC_BridgeSubmitBlock(t *testing.T) {
	env := setupTestEnv(t)

	var observed []*block.Seal
	env.server.SetSealObserver(func(id types.Hash, s *block.Seal) {
		if s.ID(env.hasher) != id {
			t.Errorf("observed seal id %s, want %s", s.ID(env.hasher), id)
		}
		observed = append(observed, s)
	})

	root := types.Hash{0x42}
	var res SubmitResult
	mustResult(t, rpcCall(t, env.url, "bridge_submitBlock", env.sealParams(env.opKey, env.genesisID, 1, root)), &res)
	if !res.Advanced || res.Height != 1 {
		t.Fatalf("result = %+v, want advanced to height 1", res)
	}
	if len(observed) != 1 || observed[0].Height != 1 || observed[0].Root != root {
		t.Errorf("observed seals = %v", observed)
	}

	var highest BlockResult
	mustResult(t, rpcCall(t, env.url, "bridge_getHighest", nil), &highest)
	if highest.ID != res.ID {
		t.Errorf("highest = %s, want %s", highest.ID, res.ID)
	}
	if highest.Operator != env.opKey.Address().String() {
		t.Errorf("operator = %s", highest.Operator)
	}
	if highest.Root != root.String() {
		t.Errorf("root = %s", highest.Root)
	}

	var count BranchCountResult
	mustResult(t, rpcCall(t, env.url, "bridge_getBranchCount", HashParam{Hash: env.genesisID.String()}), &count)
	if count.Count != 1 {
		t.Errorf("branch count = %d, want 1", count.Count)
	}
	var branch BranchResult
	mustResult(t, rpcCall(t, env.url, "bridge_getBranchAtIndex", BranchParam{Hash: env.genesisID.String(), Index: 0}), &branch)
	if branch.ID != res.ID {
		t.Errorf("branch 0 = %s, want %s", branch.ID, res.ID)
	}
	wantCode(t, rpcCall(t, env.url, "bridge_getBranchAtIndex", BranchParam{Hash: env.genesisID.String(), Index: 3}), CodeInvalidParams)

	// Resubmitting the same seal is a duplicate.
	wantCode(t, rpcCall(t, env.url, "bridge_submitBlock", env.sealParams(env.opKey, env.genesisID, 1, root)), CodeDuplicateBlock)
}

func TestRPC_BridgeSubmitBlock_Rejections(t *testing.T) {
	env := setupTestEnv(t)

	stranger, _ := crypto.GenerateKey()
	tests := []struct {
		name   string
		params SubmitBlockParam
		code   int
	}{
		{"unknown parent", env.sealParams(env.opKey, types.Hash{0x01}, 1, types.Hash{0x02}), CodeDanglingParent},
		{"not operator", env.sealParams(stranger, env.genesisID, 1, types.Hash{0x02}), CodeUnauthorized},
		{"short signature", SubmitBlockParam{Prev: env.genesisID.String(), Root: types.Hash{0x02}.String(), Signature: "abcd"}, CodeInvalidParams},
		{"bad orphan", func() SubmitBlockParam {
			p := env.sealParams(env.opKey, env.genesisID, 1, types.Hash{0x02})
			p.Orphans = []string{"nothex"}
			return p
		}(), CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, rpcCall(t, env.url, "bridge_submitBlock", tt.params), tt.code)
		})
	}

	var info InfoResult
	mustResult(t, rpcCall(t, env.url, "bridge_getInfo", nil), &info)
	if info.TipHeight != 0 {
		t.Errorf("tip height = %d after rejected submissions", info.TipHeight)
	}
}

func TestRPC_BridgeSubmitBlock_Orphans(t *testing.T) {
	env := setupTestEnv(t)
	env.mine(t, 13)

	// Depth 13 > 3*4: the genesis block is archived by the cleanup.
	tip, _ := env.engine.GetHighest()
	params := env.sealParams(env.opKey, tip.ID, 14, types.Hash{0x99})
	params.Orphans = []string{env.genesisID.String()}

	var res SubmitResult
	mustResult(t, rpcCall(t, env.url, "bridge_submitBlock", params), &res)
	if res.Archived != 1 {
		t.Fatalf("archived = %d, want 1", res.Archived)
	}

	var archived ArchivedResult
	mustResult(t, rpcCall(t, env.url, "bridge_getArchived", HeightParam{Height: 0}), &archived)
	if len(archived.IDs) != 1 || archived.IDs[0] != env.genesisID.String() {
		t.Errorf("archived at 0 = %v", archived.IDs)
	}
	wantCode(t, rpcCall(t, env.url, "bridge_getBlock", HashParam{Hash: env.genesisID.String()}), CodeNotFound)
}

func TestRPC_BridgeGetTip(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.mine(t, 3)

	var tip TipResult
	mustResult(t, rpcCall(t, env.url, "bridge_getTip", nil), &tip)
	if tip.ID != ids[3].String() {
		t.Errorf("tip = %s, want %s", tip.ID, ids[3])
	}
	if tip.Score == 0 {
		t.Error("score = 0 with a staked operator")
	}

	// Nobody listed: nothing scores and the horizon wins.
	stranger, _ := crypto.GenerateKey()
	mustResult(t, rpcCall(t, env.url, "bridge_getTip", TipParam{Operators: []string{stranger.Address().String()}}), &tip)
	if tip.Score != 0 {
		t.Errorf("score = %d for an unstaked operator", tip.Score)
	}
}

func TestRPC_BridgeGetOperators(t *testing.T) {
	env := setupTestEnv(t)
	env.mine(t, 2)

	var ops OperatorsResult
	mustResult(t, rpcCall(t, env.url, "bridge_getOperators", nil), &ops)
	if ops.Count != 1 {
		t.Fatalf("count = %d, want 1", ops.Count)
	}
	op := ops.Operators[0]
	if op.Address != env.opKey.Address().String() || op.Stake != 4000 {
		t.Errorf("operator = %+v", op)
	}
	if op.Blocks != 2 || op.LastHeight != 2 {
		t.Errorf("activity = %d blocks, last %d", op.Blocks, op.LastHeight)
	}

	var one OperatorResult
	mustResult(t, rpcCall(t, env.url, "bridge_getOperator", AddressParam{Address: op.Address}), &one)
	if one.Stake != 4000 {
		t.Errorf("stake = %d", one.Stake)
	}
	stranger, _ := crypto.GenerateKey()
	wantCode(t, rpcCall(t, env.url, "bridge_getOperator", AddressParam{Address: stranger.Address().String()}), CodeNotFound)
}

// ── Signed calls ────────────────────────────────────────────────────────

func TestRPC_SignedJoin(t *testing.T) {
	env := setupTestEnv(t)

	key, _ := crypto.GenerateKey()
	if err := env.ledger.Mint(key.Address(), 2000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	var allowance AllowanceResult
	mustResult(t, env.signed(t, key, "token_approve", &ApproveParam{Amount: 1500}), &allowance)
	if allowance.Spender != env.genesis.BridgeAddress().String() || allowance.Allowance != 1500 {
		t.Fatalf("allowance = %+v", allowance)
	}

	// Supply is now 7100: minimum stake 1775.
	wantCode(t, env.signed(t, key, "bridge_join", &JoinParam{Amount: 1500}), CodeStakeBound)

	mustResult(t, env.signed(t, key, "token_approve", &ApproveParam{Amount: 2000}), &allowance)
	var rec OperatorResult
	mustResult(t, env.signed(t, key, "bridge_join", &JoinParam{Amount: 2000}), &rec)
	if rec.Address != key.Address().String() || rec.Stake != 2000 {
		t.Errorf("record = %+v", rec)
	}

	var bal BalanceResult
	mustResult(t, rpcCall(t, env.url, "token_getBalance", AddressParam{Address: key.Address().String()}), &bal)
	if bal.Balance != 0 || bal.Stake != 2000 {
		t.Errorf("balance = %+v", bal)
	}
}

func TestRPC_SignedCall_Replay(t *testing.T) {
	env := setupTestEnv(t)
	to, _ := crypto.GenerateKey()

	params := &TransferParam{To: to.Address().String(), Amount: 10}
	mustResult(t, env.signed(t, env.opKey, "token_transfer", params), &OKResult{})

	// The identical signed request again.
	wantCode(t, rpcCall(t, env.url, "token_transfer", params), CodeBadNonce)

	bal, _ := env.ledger.BalanceOf(to.Address())
	if bal != 10 {
		t.Errorf("balance = %d, want 10", bal)
	}

	var nonce NonceResult
	mustResult(t, rpcCall(t, env.url, "bridge_getNonce", AddressParam{Address: env.opKey.Address().String()}), &nonce)
	if nonce.Nonce != 1 {
		t.Errorf("nonce = %d, want 1", nonce.Nonce)
	}
}

func TestRPC_SignedCall_BadSignature(t *testing.T) {
	env := setupTestEnv(t)
	other, _ := crypto.GenerateKey()

	// Signed by other but claiming to be the operator.
	params := &LeaveParam{}
	if err := SignCall(other, env.genesis.ChainID, "bridge_requestLeave", 1, params); err != nil {
		t.Fatalf("sign: %v", err)
	}
	params.From = env.opKey.Address().String()
	wantCode(t, rpcCall(t, env.url, "bridge_requestLeave", params), CodeSignatureInvalid)

	// Signed for another method.
	params = &LeaveParam{}
	if err := SignCall(env.opKey, env.genesis.ChainID, "bridge_join", 1, params); err != nil {
		t.Fatalf("sign: %v", err)
	}
	wantCode(t, rpcCall(t, env.url, "bridge_requestLeave", params), CodeSignatureInvalid)

	// Signed for another chain.
	params = &LeaveParam{}
	if err := SignCall(env.opKey, "other-chain", "bridge_requestLeave", 1, params); err != nil {
		t.Fatalf("sign: %v", err)
	}
	wantCode(t, rpcCall(t, env.url, "bridge_requestLeave", params), CodeSignatureInvalid)

	rec, _ := env.engine.Operator(env.opKey.Address())
	if rec.Leaving {
		t.Error("leave recorded from a forged call")
	}
}

func TestRPC_LeaveAndPayout(t *testing.T) {
	env := setupTestEnv(t)
	addr := env.opKey.Address().String()

	wantCode(t, rpcCall(t, env.url, "bridge_payout", PayoutParam{Operator: addr}), CodeCooldown)

	var rec OperatorResult
	mustResult(t, env.signed(t, env.opKey, "bridge_requestLeave", &LeaveParam{}), &rec)
	if !rec.Leaving || rec.LeaveHeight != 0 {
		t.Fatalf("record = %+v", rec)
	}
	wantCode(t, env.signed(t, env.opKey, "bridge_requestLeave", &LeaveParam{}), CodeUnauthorized)
	wantCode(t, rpcCall(t, env.url, "bridge_payout", PayoutParam{Operator: addr}), CodeCooldown)

	env.mine(t, 8)
	var paid PayoutResult
	mustResult(t, rpcCall(t, env.url, "bridge_payout", PayoutParam{Operator: addr}), &paid)
	if paid.Amount != 4000 {
		t.Errorf("payout = %d, want 4000", paid.Amount)
	}
	wantCode(t, rpcCall(t, env.url, "bridge_payout", PayoutParam{Operator: addr}), CodeUnauthorized)
}

func TestRPC_ClaimReward(t *testing.T) {
	env := setupTestEnv(t)
	ids := env.mine(t, 5)

	// Block 6 commits to the operator's block 5 in its coinbase.
	body := &block.Body{
		Height:   6,
		Operator: env.opKey.Address(),
		Coinbase: []types.Hash{ids[5]},
		Txs:      []types.Hash{{0x01}},
	}
	seal := block.Sign(env.hasher, env.opKey, ids[5], 6, body.Root(env.hasher))
	var sub SubmitResult
	mustResult(t, rpcCall(t, env.url, "bridge_submitBlock", SubmitBlockParam{
		Prev:      ids[5].String(),
		Root:      seal.Root.String(),
		Signature: hex.EncodeToString(seal.Signature),
	}), &sub)
	env.mine(t, 12)

	proof := body.CoinbaseProof(env.hasher)
	params := &ClaimParam{
		BlockID:  sub.ID,
		Coinbase: []string{ids[5].String()},
		BlockSig: hex.EncodeToString(seal.Signature),
	}
	for _, p := range proof {
		params.Proof = append(params.Proof, p.String())
	}

	var claim ClaimResult
	mustResult(t, env.signed(t, env.opKey, "bridge_claimReward", params), &claim)
	if claim.Amount != 20 || claim.Epoch != 4 || claim.Blocks != 2 {
		t.Errorf("claim = %+v, want 20 for 2 blocks in epoch 4", claim)
	}

	again := *params
	wantCode(t, env.signed(t, env.opKey, "bridge_claimReward", &again), CodeAlreadyClaimed)

	bogus := &ClaimParam{BlockID: types.Hash{0xee}.String(), BlockSig: params.BlockSig}
	wantCode(t, env.signed(t, env.opKey, "bridge_claimReward", bogus), CodeProofMismatch)
}

func TestRPC_TokenQueries(t *testing.T) {
	env := setupTestEnv(t)

	var info TokenInfoResult
	mustResult(t, rpcCall(t, env.url, "token_getInfo", nil), &info)
	if info.Symbol != "LEAP" || info.TotalSupply != 5100 || info.Decimals != config.Decimals {
		t.Errorf("info = %+v", info)
	}

	var allowance AllowanceResult
	mustResult(t, rpcCall(t, env.url, "token_getAllowance", AllowanceParam{Owner: env.opKey.Address().String()}), &allowance)
	if allowance.Allowance != 0 {
		t.Errorf("allowance after join = %d, want 0", allowance.Allowance)
	}

	var bal BalanceResult
	mustResult(t, rpcCall(t, env.url, "token_getBalance", AddressParam{Address: env.genesis.BridgeAddress().String()}), &bal)
	if bal.Balance != 5000 {
		t.Errorf("bridge balance = %d, want 5000", bal.Balance)
	}

	to, _ := crypto.GenerateKey()
	wantCode(t, env.signed(t, env.opKey, "token_transfer", &TransferParam{To: to.Address().String(), Amount: 1000}), CodeLedger)
}

// ── Protocol ────────────────────────────────────────────────────────────

func TestRPC_NetGetNodeInfo_Offline(t *testing.T) {
	env := setupTestEnv(t)

	var info NodeInfoResult
	mustResult(t, rpcCall(t, env.url, "net_getNodeInfo", nil), &info)
	if info.ID != "" || len(info.Addrs) != 0 {
		t.Errorf("offline node info = %+v", info)
	}
	var peers PeerInfoResult
	mustResult(t, rpcCall(t, env.url, "net_getPeerInfo", nil), &peers)
	if peers.Count != 0 {
		t.Errorf("peers = %d", peers.Count)
	}
}

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)
	wantCode(t, rpcCall(t, env.url, "bridge_nope", nil), CodeMethodNotFound)
}

func TestRPC_ParamsRequired(t *testing.T) {
	env := setupTestEnv(t)
	wantCode(t, rpcCall(t, env.url, "bridge_getBlock", nil), CodeInvalidParams)
	wantCode(t, rpcCall(t, env.url, "token_getBalance", AddressParam{Address: "0x1234"}), CodeInvalidParams)
}

func TestRPC_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url, "application/json", bytes.NewReader([]byte("not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	wantCode(t, rpcResp, CodeParseError)
}

func TestRPC_WrongVersion(t *testing.T) {
	env := setupTestEnv(t)

	body := []byte(`{"jsonrpc":"1.0","method":"bridge_getInfo","id":1}`)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	wantCode(t, rpcResp, CodeInvalidRequest)
}

func TestRPC_GetMethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	wantCode(t, rpcResp, CodeInvalidRequest)
}

// --- IP Filtering ---

func TestRPC_IPFilter_Allowed(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{AllowedIPs: []string{"127.0.0.1"}})

	resp := rpcCall(t, env.url, "bridge_getInfo", nil)
	if resp.Error != nil {
		t.Errorf("expected success for 127.0.0.1, got error: %s", resp.Error.Message)
	}
}

func TestRPC_IPFilter_Blocked(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{AllowedIPs: []string{"10.0.0.0/8"}})

	body := []byte(`{"jsonrpc":"2.0","method":"bridge_getInfo","id":1}`)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestRPC_IPFilter_Wildcard(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{AllowedIPs: []string{"10.0.0.0/8", "*"}})

	resp := rpcCall(t, env.url, "bridge_getInfo", nil)
	if resp.Error != nil {
		t.Errorf("wildcard should allow all: %s", resp.Error.Message)
	}
}

// --- CORS ---

func corsPost(t *testing.T, url, origin string) *http.Response {
	t.Helper()
	body := []byte(`{"jsonrpc":"2.0","method":"bridge_getInfo","id":1}`)
	req, _ := http.NewRequest("POST", url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", origin)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRPC_CORS_WildcardOrigin(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{CORSOrigins: []string{"*"}})

	if origin := corsPost(t, env.url, "http://example.com").Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("CORS origin = %q, want %q", origin, "*")
	}
}

func TestRPC_CORS_SpecificOrigin(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{CORSOrigins: []string{"http://myapp.com"}})

	if origin := corsPost(t, env.url, "http://myapp.com").Header.Get("Access-Control-Allow-Origin"); origin != "http://myapp.com" {
		t.Errorf("CORS origin = %q, want %q", origin, "http://myapp.com")
	}
	if origin := corsPost(t, env.url, "http://evil.com").Header.Get("Access-Control-Allow-Origin"); origin != "" {
		t.Errorf("non-matching origin should have no CORS header, got %q", origin)
	}
}

func TestRPC_CORS_Preflight(t *testing.T) {
	env := setupTestEnv(t, config.RPCConfig{CORSOrigins: []string{"*"}})

	httpReq, _ := http.NewRequest("OPTIONS", env.url, nil)
	httpReq.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight should have Allow-Methods header")
	}
}

func TestRPC_CORS_Disabled(t *testing.T) {
	env := setupTestEnv(t)

	if origin := corsPost(t, env.url, "http://example.com").Header.Get("Access-Control-Allow-Origin"); origin != "" {
		t.Errorf("disabled CORS should have no origin header, got %q", origin)
	}
}

// --- HTTP endpoints ---

func TestRPC_Health(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", env.server.Addr()))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var st HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != "ok" || st.Height != 0 || st.Peers != 0 {
		t.Errorf("health = %+v", st)
	}
}

func TestRPC_Metrics(t *testing.T) {
	env := setupTestEnv(t)
	m := metrics.New()
	env.server.SetMetrics(m)

	call := func(method string) {
		body := []byte(fmt.Sprintf(`{"jsonrpc":"2.0","method":%q,"id":1}`, method))
		rec := httptest.NewRecorder()
		env.server.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	}
	call("bridge_getInfo")
	call("bridge_getInfo")
	call("bridge_nope")

	rec := httptest.NewRecorder()
	env.server.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	out := rec.Body.String()
	for _, want := range []string{
		`leap_rpc_calls_total{code="0",method="bridge_getInfo"} 2`,
		fmt.Sprintf(`leap_rpc_calls_total{code="%d",method="unknown"} 1`, CodeMethodNotFound),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRPC_MetricsDisabled(t *testing.T) {
	env := setupTestEnv(t)

	rec := httptest.NewRecorder()
	env.server.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics without registry = %d, want 404", rec.Code)
	}
}

package block

import (
	"bytes"
	"strings"
	"testing"

	"github.com/djkazic/btclib-go/pkg/util"
)

const rawHeaderHex = "020000208ec39428b17323fa0ddec8e887b4a7c53b8c0a0a220cfd0000000000000000005b0750fce0a889502d40508d39576821155e9c9e3f5c3157f961db38fd8b25be1e77a759e93c0118a4ffd71d"

func parseHeader(t *testing.T, hexStr string) *Block {
	t.Helper()
	raw, err := util.HexToBytes(hexStr)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	b, err := ParseBytes(raw)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	return b
}

func TestParseHeader(t *testing.T) {
	b := parseHeader(t, rawHeaderHex)

	if b.Version != 0x20000002 {
		t.Errorf("version = %#x, want 0x20000002", b.Version)
	}
	wantPrev := "000000000000000000fd0c220a0a8c3bc5a7b487e8c8de0dfa2373b12894c38e"
	if util.BytesToHex(b.PrevBlock[:]) != wantPrev {
		t.Errorf("prev block = %x, want %s", b.PrevBlock, wantPrev)
	}
	wantRoot := "be258bfd38db61f957315c3f9e9c5e15216857398d50402d5089a8e0fc50075b"
	if util.BytesToHex(b.MerkleRoot[:]) != wantRoot {
		t.Errorf("merkle root = %x, want %s", b.MerkleRoot, wantRoot)
	}
	if b.Timestamp != 0x59a7771e {
		t.Errorf("timestamp = %#x, want 0x59a7771e", b.Timestamp)
	}
	if b.Bits != 0x18013ce9 {
		t.Errorf("bits = %#x, want 0x18013ce9", b.Bits)
	}
}

func TestSerializeHeaderRoundTrip(t *testing.T) {
	raw, _ := util.HexToBytes(rawHeaderHex)
	b, err := ParseBytes(raw)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if !bytes.Equal(b.Serialize(), raw) {
		t.Error("serialize round trip mismatch")
	}
}

func TestHeaderHash(t *testing.T) {
	b := parseHeader(t, rawHeaderHex)
	h := b.Hash()
	want := "0000000000000000007e9e4c586439b0cdbe13b1370bdd9435d76a644d047523"
	if util.BytesToHex(h[:]) != want {
		t.Errorf("hash = %x, want %s", h, want)
	}
}

func TestBIPSignaling(t *testing.T) {
	b := parseHeader(t, rawHeaderHex)
	if !b.BIP9() {
		t.Error("BIP9 should signal")
	}
	if b.BIP91() {
		t.Error("BIP91 should not signal")
	}
	if !b.BIP141() {
		t.Error("BIP141 should signal")
	}

	b91 := parseHeader(t, "1200002028856ec5bca29cf76980d368b0a163a0bb81fc192951270100000000000000003288f32a2831833c31a25401c52093eb545d28157e200a64b21b3ae8f21c507401877b5935470118144dbfd4")
	if !b91.BIP91() {
		t.Error("BIP91 should signal")
	}
	if !b91.BIP141() {
		t.Error("BIP141 should signal")
	}

	b9 := parseHeader(t, "0400000039fa821848781f027a2e6dfabbf6bda920d9ae61b63400030000000000000000ecae536a304042e3154be0e3e9a8220e5568c3433a9ab49ac4cbb74f8df8e8b0cc2acf569fb9061806652c27")
	if b9.BIP9() {
		t.Error("version 4 should not signal BIP9")
	}
}

func TestTargetAndDifficulty(t *testing.T) {
	b := parseHeader(t, rawHeaderHex)
	want := "13ce9" + strings.Repeat("0", 42)
	if b.Target().Text(16) != want {
		t.Errorf("target = %s, want %s", b.Target().Text(16), want)
	}

	diff := b.Difficulty()
	if diff < 888171856257 || diff > 888171856258 {
		t.Errorf("difficulty = %f, want ~888171856257.32", diff)
	}
}

func TestCheckPoW(t *testing.T) {
	valid := parseHeader(t, "00000020df3b053dc46f162a9b00c7f0d5124e2676d47bbe7c5d0793a500000000000000ef445fef2ed495c275892206ca533e7411907971013ab83e3b47bd0d692d14d4dc7c835b67d8001ac157e670")
	if !valid.CheckPoW() {
		t.Error("valid proof of work rejected")
	}
	h := valid.Hash()
	want := "00000000000000cac712b726e4326e596170574c01a16001692510c44025eb30"
	if util.BytesToHex(h[:]) != want {
		t.Errorf("hash = %x, want %s", h, want)
	}

	invalid := *valid
	invalid.Nonce ^= 0xff
	if invalid.CheckPoW() {
		t.Error("invalid proof of work accepted")
	}
}

func TestGenesisHeaders(t *testing.T) {
	genesis, err := ParseBytes(GenesisRaw)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	h := genesis.Hash()
	want := "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	if util.BytesToHex(h[:]) != want {
		t.Errorf("genesis hash = %x, want %s", h, want)
	}
	if !genesis.CheckPoW() {
		t.Error("genesis proof of work rejected")
	}

	testnet, err := ParseBytes(TestnetGenesisRaw)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	th := testnet.Hash()
	wantTestnet := "000000000933ea01ad0ee984209779baaec3ced90fa3f408719526f8d77f4943"
	if util.BytesToHex(th[:]) != wantTestnet {
		t.Errorf("testnet genesis hash = %x, want %s", th, wantTestnet)
	}
}

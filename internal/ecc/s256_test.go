package ecc

import (
	"math/big"
	"testing"

	"github.com/djkazic/btclib-go/pkg/util"
)

func hexInt(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		t.Fatalf("bad hex int %q", s)
	}
	return n
}

func TestS256Order(t *testing.T) {
	if !G.Mul(N).IsInfinity() {
		t.Error("n*G should be the point at infinity")
	}
}

func TestS256ScalarReduction(t *testing.T) {
	k := big.NewInt(1234567)
	kPlusN := new(big.Int).Add(k, N)
	if !G.Mul(k).Eq(G.Mul(kPlusN)) {
		t.Error("(k mod n)*G should equal k*G")
	}
}

func TestS256PubPoint(t *testing.T) {
	tests := []struct {
		secret *big.Int
		x, y   string
	}{
		{
			big.NewInt(7),
			"5cbdf0646e5db4eaa398f365f2ea7a0e3d419b7e0330e39ce92bddedcac4f9bc",
			"6aebca40ba255960a3178d6d861a54dba813d0b813fde7b5a5082628087264da",
		},
		{
			big.NewInt(1485),
			"c982196a7466fbbbb0e27a940b6af926c1a74d5ad07128c82824a11b5398afda",
			"7a91f9eae64438afb9ce6448a1c133db2d8fb9254e4546b6f001637d50901f55",
		},
		{
			new(big.Int).Lsh(big.NewInt(1), 128),
			"8f68b9d2f63b5f339239c1ad981f162ee88c5678723ea3351b7b444c9ec4c0da",
			"662a9f2dba063986de1d90c2b6be215dbbea2cfe95510bfdf23cbf79501fff82",
		},
		{
			new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 240), new(big.Int).Lsh(big.NewInt(1), 31)),
			"9577ff57c8234558f293df502ca4f09cbc65a6572c842b39b366f21717945116",
			"10b49c67fa9365ad7b90dab070be339a1daf9052373ec30ffae4f72d5e66d053",
		},
	}
	for _, tt := range tests {
		want, err := NewS256Point(hexInt(t, tt.x), hexInt(t, tt.y))
		if err != nil {
			t.Fatalf("NewS256Point: %v", err)
		}
		got := G.Mul(tt.secret)
		if !got.Eq(want) {
			t.Errorf("%v*G = %v, want (%s, %s)", tt.secret, got, tt.x, tt.y)
		}
	}
}

func TestS256Verify(t *testing.T) {
	point, err := NewS256Point(
		hexInt(t, "887387e452b8eacc4acfde10d9aaf7f6d9a0f975aabb10d006e4da568744d06c"),
		hexInt(t, "61de6d95231cd89026e286df3b6ae4a894a3378e393e93a0f45b666329a0ae34"),
	)
	if err != nil {
		t.Fatalf("NewS256Point: %v", err)
	}

	tests := []struct {
		z, r, s string
		want    bool
	}{
		{
			"ec208baa0fc1c19f708a9ca96fdeff3ac3f230bb4a7ba4aede4942ad003c0f60",
			"ac8d1c87e51d0d441be8b3dd5b05c8795b48875dffe00b7ffcfac23010d3a395",
			"68342ceff8935ededd102dd876ffd6ba72d6a427a3edb13d26eb0781cb423c4",
			true,
		},
		{
			"7c076ff316692a3d7eb3c3bb0f8b1488cf72e1afcd929e29307032997a838a3d",
			"eff69ef2b1bd93a66ed5219add4fb51e11a840f404876325a1e8ffe0529a2c",
			"c7207fee197d27c618aea621406f6bf5ef6fca38681d82b2f06fddbdce6feab6",
			true,
		},
		{
			// r tweaked by one: must not verify
			"ec208baa0fc1c19f708a9ca96fdeff3ac3f230bb4a7ba4aede4942ad003c0f60",
			"ac8d1c87e51d0d441be8b3dd5b05c8795b48875dffe00b7ffcfac23010d3a396",
			"68342ceff8935ededd102dd876ffd6ba72d6a427a3edb13d26eb0781cb423c4",
			false,
		},
	}
	for _, tt := range tests {
		sig := &Signature{R: hexInt(t, tt.r), S: hexInt(t, tt.s)}
		if got := point.Verify(hexInt(t, tt.z), sig); got != tt.want {
			t.Errorf("Verify(z=%s) = %v, want %v", tt.z, got, tt.want)
		}
	}
}

func TestS256VerifyRejectsOutOfRange(t *testing.T) {
	point := G.Mul(big.NewInt(12345))
	z := big.NewInt(999)
	if point.Verify(z, &Signature{R: big.NewInt(0), S: big.NewInt(1)}) {
		t.Error("r = 0 should not verify")
	}
	if point.Verify(z, &Signature{R: big.NewInt(1), S: new(big.Int).Set(N)}) {
		t.Error("s = n should not verify")
	}
}

func TestSECUncompressed(t *testing.T) {
	tests := []struct {
		secret *big.Int
		want   string
	}{
		{
			big.NewInt(5000),
			"04ffe558e388852f0120e46af2d1b370f85854a8eb0841811ece0e3e03d282d57c315dc72890a4f10a1481c031b03b351b0dc79901ca18a00cf009dbdb157a1d10",
		},
		{
			new(big.Int).Exp(big.NewInt(2018), big.NewInt(5), nil),
			"04027f3da1918455e03c46f659266a1bb5204e959db7364d2f473bdf8f0a13cc9dff87647fd023c13b4a4994f17691895806e1b40b57f4fd22581a4f46851f3b06",
		},
		{
			hexInt(t, "deadbeef12345"),
			"04d90cd625ee87dd38656dd95cf79f65f60f7273b67d3096e68bd81e4f5342691f842efa762fd59961d0e99803c61edba8b3e3f7dc3a341836f97733aebf987121",
		},
	}
	for _, tt := range tests {
		point := G.Mul(tt.secret)
		if got := util.BytesToHex(point.SEC(false)); got != tt.want {
			t.Errorf("SEC(false) for secret %v = %s, want %s", tt.secret, got, tt.want)
		}
	}
}

func TestSECCompressed(t *testing.T) {
	tests := []struct {
		secret *big.Int
		want   string
	}{
		{
			big.NewInt(5001),
			"0357a4f368868a8a6d572991e484e664810ff14c05c0fa023275251151fe0e53d1",
		},
		{
			new(big.Int).Exp(big.NewInt(2019), big.NewInt(5), nil),
			"02933ec2d2b111b92737ec12f1c5d20f3233a0ad21cd8b36d0bca7a0cfa5cb8701",
		},
		{
			hexInt(t, "deadbeef54321"),
			"0296be5b1292f6c856b3c5654e886fc13511462059089cdf9c479623bfcbe77690",
		},
	}
	for _, tt := range tests {
		point := G.Mul(tt.secret)
		if got := util.BytesToHex(point.SEC(true)); got != tt.want {
			t.Errorf("SEC(true) for secret %v = %s, want %s", tt.secret, got, tt.want)
		}
	}
}

func TestParseSECRoundTrip(t *testing.T) {
	for _, secret := range []int64{999, 123, 42424242} {
		point := G.Mul(big.NewInt(secret))

		parsed, err := ParseSEC(point.SEC(false))
		if err != nil {
			t.Fatalf("ParseSEC uncompressed: %v", err)
		}
		if !parsed.Eq(point) {
			t.Errorf("uncompressed round trip failed for secret %d", secret)
		}

		parsed, err = ParseSEC(point.SEC(true))
		if err != nil {
			t.Fatalf("ParseSEC compressed: %v", err)
		}
		if !parsed.Eq(point) {
			t.Errorf("compressed round trip failed for secret %d", secret)
		}
	}
}

func TestParseSECBadInput(t *testing.T) {
	if _, err := ParseSEC(nil); err == nil {
		t.Error("empty SEC should fail")
	}
	if _, err := ParseSEC([]byte{0x05, 0x01}); err == nil {
		t.Error("unknown prefix should fail")
	}
	if _, err := ParseSEC(make([]byte, 33)); err == nil {
		t.Error("zero-prefix SEC should fail")
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		secret     *big.Int
		compressed bool
		testnet    bool
		want       string
	}{
		{new(big.Int).Exp(big.NewInt(888), big.NewInt(3), nil), true, false, "148dY81A9BmdpMhvYEVznrM45kWN32vSCN"},
		{new(big.Int).Exp(big.NewInt(888), big.NewInt(3), nil), true, true, "mieaqB68xDCtbUBYFoUNcmZNwk74xcBfTP"},
		{big.NewInt(321), false, false, "1S6g2xBJSED7Qr9CYZib5f4PYVhHZiVfj"},
		{big.NewInt(321), false, true, "mfx3y63A7TfTtXKkv7Y6QzsPFY6QCBCXiP"},
		{big.NewInt(4242424242), false, false, "1226JSptcStqn4Yq9aAmNXdwdc2ixuH9nb"},
		{big.NewInt(4242424242), false, true, "mgY3bVusRUL6ZB2Ss999CSrGVbdRwVpM8s"},
	}
	for _, tt := range tests {
		point := G.Mul(tt.secret)
		got := point.Address(tt.compressed, tt.testnet)
		if got != tt.want {
			t.Errorf("Address(secret=%v, compressed=%v, testnet=%v) = %s, want %s",
				tt.secret, tt.compressed, tt.testnet, got, tt.want)
		}
	}
}

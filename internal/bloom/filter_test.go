package bloom

import (
	"testing"

	"github.com/djkazic/btclib-go/pkg/util"
)

func TestFilterAdd(t *testing.T) {
	f := New(10, 5, 99)

	f.Add([]byte("Hello World"))
	want := "0000000a080000000140"
	if got := util.BytesToHex(f.FilterBytes()); got != want {
		t.Errorf("filter bytes = %s, want %s", got, want)
	}

	f.Add([]byte("Goodbye!"))
	want = "4000600a080000010940"
	if got := util.BytesToHex(f.FilterBytes()); got != want {
		t.Errorf("filter bytes = %s, want %s", got, want)
	}
}

func TestFilterLoad(t *testing.T) {
	f := New(10, 5, 99)
	f.Add([]byte("Hello World"))
	f.Add([]byte("Goodbye!"))

	want := "0a4000600a080000010940050000006300000001"
	if got := util.BytesToHex(f.FilterLoad(1)); got != want {
		t.Errorf("filterload = %s, want %s", got, want)
	}
}

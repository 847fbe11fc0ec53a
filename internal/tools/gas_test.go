package tools

import "testing"

func TestParseGasDeltas(t *testing.T) {
	output := `Compiling 3 files with Solc 0.8.24
testTransfer() (gas: -1204 (-0.440%))
testMint() (gas: 312 (0.120%))
testBurn() (gas: 0 (0.000%))
Overall gas change: -892 (-0.107%)
`
	deltas := ParseGasDeltas(output)
	if len(deltas) != 3 {
		t.Fatalf("unexpected delta count: %d (%v)", len(deltas), deltas)
	}
	if deltas[0].Test != "testTransfer()" || deltas[0].Delta != -1204 || deltas[0].Percent != -0.440 {
		t.Fatalf("unexpected first delta: %+v", deltas[0])
	}
	if deltas[0].Regression() {
		t.Fatal("gas 降低不是回归")
	}
	if !deltas[1].Regression() {
		t.Fatal("gas 上升应当判定为回归")
	}
	if deltas[2].Regression() {
		t.Fatal("无变化不是回归")
	}
}

func TestParseGasDeltasSkipsUnmatchedLines(t *testing.T) {
	output := "No files changed, compilation skipped\nRan 0 tests\n"
	if deltas := ParseGasDeltas(output); len(deltas) != 0 {
		t.Fatalf("不匹配的行应当被跳过: %v", deltas)
	}
}

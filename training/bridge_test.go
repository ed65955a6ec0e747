package training

import (
	"testing"

	"github.com/sein-jang/rationale-net/tensor"
)

func TestToTensorsRoundTrip(t *testing.T) {
	tokens := [][]int32{{1, 2, 3}, {4, 5, 0}}
	lengths := []int32{3, 2}
	values := []float32{0.5, 1.5}

	tensors, err := ToTensors(tensor.CPU, tokens, lengths, values)
	if err != nil {
		t.Fatal(err)
	}
	if len(tensors) != 3 {
		t.Fatalf("got %d tensors, want 3", len(tensors))
	}
	if tensors[0].Shape[0] != 2 || tensors[0].Shape[1] != 3 {
		t.Errorf("token tensor shape = %v, want [2 3]", tensors[0].Shape)
	}

	gotTokens, err := HostInts(tensors[0])
	if err != nil {
		t.Fatal(err)
	}
	wantTokens := []int32{1, 2, 3, 4, 5, 0}
	for i, w := range wantTokens {
		if gotTokens[i] != w {
			t.Errorf("token[%d] = %d, want %d", i, gotTokens[i], w)
		}
	}

	gotValues, err := HostFloats(tensors[2])
	if err != nil {
		t.Fatal(err)
	}
	for i, w := range values {
		if gotValues[i] != w {
			t.Errorf("value[%d] = %v, want %v", i, gotValues[i], w)
		}
	}
}

func TestToTensorCopiesData(t *testing.T) {
	src := []float32{1, 2}
	tt, err := ToTensor(tensor.CPU, src)
	if err != nil {
		t.Fatal(err)
	}
	src[0] = 99
	data, _ := tt.Float32Data()
	if data[0] != 1 {
		t.Error("tensor shares memory with the source slice")
	}
}

func TestToTensorRejectsRaggedRows(t *testing.T) {
	if _, err := ToTensor(tensor.CPU, [][]int32{{1, 2}, {3}}); err == nil {
		t.Error("expected error for ragged rows")
	}
}

func TestToTensorRejectsUnknownTypes(t *testing.T) {
	if _, err := ToTensor(tensor.CPU, "text"); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestScalarOf(t *testing.T) {
	one, err := tensor.FromScalar(2.5, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		in   interface{}
		want float64
	}{
		{one, 2.5},
		{float64(1.25), 1.25},
		{float32(0.5), 0.5},
		{int(3), 3},
		{int32(4), 4},
		{int64(5), 5},
	}
	for _, c := range cases {
		got, err := ScalarOf(c.in)
		if err != nil {
			t.Errorf("ScalarOf(%T): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ScalarOf(%T) = %v, want %v", c.in, got, c.want)
		}
	}

	big, err := tensor.Zeros([]int{2}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ScalarOf(big); err == nil {
		t.Error("expected error for multi-element tensor")
	}
	if _, err := ScalarOf("nope"); err == nil {
		t.Error("expected error for non-numeric input")
	}
}

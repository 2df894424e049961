package hapble

import (
	"bytes"
	"testing"
)

func TestRequestFragmentsSingle(t *testing.T) {
	req := Request{Opcode: OpRead, TID: 7, IID: 0x0102}
	frags := req.Fragments(defaultMTU)
	if len(frags) != 1 {
		t.Fatalf("fragments = %d, want 1", len(frags))
	}
	want := []byte{0x00, OpRead, 7, 0x02, 0x01}
	if !bytes.Equal(frags[0], want) {
		t.Errorf("frame = %X, want %X", frags[0], want)
	}
}

func TestRequestFragmentsContinuation(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 40)
	frags := Request{Opcode: OpWrite, TID: 3, IID: 9, Body: body}.Fragments(defaultMTU)

	if len(frags) != 3 {
		t.Fatalf("fragments = %d, want 3", len(frags))
	}
	for i, f := range frags {
		if len(f) > defaultMTU-3 {
			t.Errorf("fragment %d is %d bytes", i, len(f))
		}
	}
	if frags[0][5] != 40 || frags[0][6] != 0 {
		t.Errorf("body length = %X", frags[0][5:7])
	}
	if frags[1][0] != ctrlContinuation || frags[1][1] != 3 {
		t.Errorf("continuation header = %X", frags[1][:2])
	}

	var joined []byte
	joined = append(joined, frags[0][7:]...)
	for _, f := range frags[1:] {
		joined = append(joined, f[2:]...)
	}
	if !bytes.Equal(joined, body) {
		t.Error("reassembled body mismatch")
	}
}

func TestResponseAssembler(t *testing.T) {
	var a responseAssembler
	done, err := a.Add([]byte{0x02, 5, 0x00, 6, 0, 'a', 'b', 'c'})
	if err != nil || done {
		t.Fatalf("first: done=%v err=%v", done, err)
	}
	done, err = a.Add([]byte{0x82, 5, 'd', 'e', 'f'})
	if err != nil || !done {
		t.Fatalf("second: done=%v err=%v", done, err)
	}
	resp := a.Response()
	if resp.TID != 5 || resp.Status != 0 || string(resp.Body) != "abcdef" {
		t.Errorf("response = %+v", resp)
	}
}

func TestResponseAssemblerNoBody(t *testing.T) {
	var a responseAssembler
	done, err := a.Add([]byte{0x02, 1, 0x06})
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if a.Response().Status != 0x06 {
		t.Errorf("status = %d", a.Response().Status)
	}
}

func TestResponseAssemblerErrors(t *testing.T) {
	tests := []struct {
		name  string
		frags [][]byte
	}{
		{"short", [][]byte{{0x02, 1}}},
		{"request control", [][]byte{{0x00, 1, 0}}},
		{"continuation first", [][]byte{{0x82, 1, 0}}},
		{"wrong tid", [][]byte{{0x02, 1, 0, 4, 0, 'a'}, {0x82, 2, 'b'}}},
		{"missing continuation bit", [][]byte{{0x02, 1, 0, 4, 0, 'a'}, {0x02, 1, 'b'}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a responseAssembler
			var err error
			for _, f := range tt.frags {
				if _, err = a.Add(f); err != nil {
					break
				}
			}
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

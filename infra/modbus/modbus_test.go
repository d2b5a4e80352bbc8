package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/thermompc/core/actuation"
)

type fakeRegisters struct {
	input   map[uint16]uint16
	holding map[uint16]uint16
	fail    map[uint16]bool
	writes  []uint16
}

func newFake() *fakeRegisters {
	return &fakeRegisters{input: map[uint16]uint16{}, holding: map[uint16]uint16{}, fail: map[uint16]bool{}}
}

func (f *fakeRegisters) read(src map[uint16]uint16, address, quantity uint16) ([]byte, error) {
	if f.fail[address] {
		return nil, errors.New("exception 2")
	}
	out := make([]byte, 2*quantity)
	for i := uint16(0); i < quantity; i++ {
		binary.BigEndian.PutUint16(out[2*i:], src[address+i])
	}
	return out, nil
}

func (f *fakeRegisters) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return f.read(f.input, address, quantity)
}

func (f *fakeRegisters) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return f.read(f.holding, address, quantity)
}

func (f *fakeRegisters) WriteSingleRegister(address, value uint16) ([]byte, error) {
	if f.fail[address] {
		return nil, errors.New("exception 4")
	}
	f.holding[address] = value
	f.writes = append(f.writes, address)
	return nil, nil
}

func neg(v int16) uint16 { return uint16(v) }

func testConfig() Config {
	return Config{
		Address: "plc:502",
		Nodes: map[string]NodeRegister{
			"hs": {Address: 100},
			"is": {Address: 110, Blocks: 2},
		},
		Groups:    map[string]uint16{"hp": 200, "regen": 201},
		SetPoints: map[string]uint16{"hs": 300},
	}
}

func TestReadDecodesRegisters(t *testing.T) {
	f := newFake()
	f.input[100] = 365
	f.input[110] = neg(-15)
	f.input[111] = 5
	f.holding[200] = 2
	f.holding[201] = 0
	p := newPlant(testConfig(), f)

	s, err := p.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{36.5}, s.Temps["hs"])
	assert.Equal(t, []float64{-1.5, 0.5}, s.Temps["is"])
	assert.Equal(t, 2, s.Modes["hp"])
	assert.Equal(t, 0, s.Modes["regen"])
}

func TestReadSkipsFailedRegisters(t *testing.T) {
	f := newFake()
	f.fail[110] = true
	f.fail[201] = true
	p := newPlant(testConfig(), f)
	s, err := p.Read(context.Background())
	require.NoError(t, err)
	assert.Contains(t, s.Temps, "hs")
	assert.NotContains(t, s.Temps, "is")
	assert.NotContains(t, s.Modes, "regen")

	for _, a := range []uint16{100, 110, 200, 201} {
		f.fail[a] = true
	}
	_, err = p.Read(context.Background())
	assert.Error(t, err)
}

func TestApplyWritesModesAndSetPoints(t *testing.T) {
	f := newFake()
	p := newPlant(testConfig(), f)
	err := p.Apply(context.Background(), actuation.Action{
		Modes:     map[string]int{"hp": 1, "unknown": 3},
		SetPoints: map[string]float64{"hs": 36.5, "cs": 14},
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(1), f.holding[200])
	assert.Equal(t, uint16(365), f.holding[300])
	assert.Equal(t, []uint16{200, 300}, f.writes)
}

func TestApplyContinuesAfterFailure(t *testing.T) {
	f := newFake()
	f.fail[200] = true
	p := newPlant(testConfig(), f)
	err := p.Apply(context.Background(), actuation.Action{
		Modes:     map[string]int{"hp": 1, "regen": 1},
		SetPoints: map[string]float64{"hs": 30},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hp")
	assert.Equal(t, uint16(1), f.holding[201])
	assert.Equal(t, uint16(300), f.holding[300])
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Address: "a", Device: "/dev/ttyUSB0"}.Validate())
	assert.NoError(t, Config{Device: "/dev/ttyUSB0"}.Validate())
	_, err := Dial(Config{})
	assert.Error(t, err)
}

package protocol

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

// com3Frame builds a valid 60 byte COM3 frame.
func com3Frame(decimals int, negative bool, weight, tare, alibi int64, unit byte) []byte {
	sign := byte(' ')
	if negative {
		sign = '-'
	}
	body := fmt.Sprintf("CW1001%c%c%d01%c%10d%c%c%6d%2s%12s%11d%3s",
		'0', '0', decimals, sign, weight, unit, ' ', tare, "01", "PROGRAM", alibi, "000")
	frame := append([]byte{STX}, body...)
	frame = append(frame, ETX)
	return frame
}

func TestCOM3FrameLength(t *testing.T) {
	assert.Len(t, com3Frame(2, false, 1, 0, 1, 'k'), com3FrameLen)
}

func TestCOM3Decode(t *testing.T) {
	d := NewScanvaegtCOM3()
	res, state := d.Decode(com3Frame(2, false, 12345, 250, 77, 'k'))
	require.Equal(t, Success, state)

	w := res.(*devices.WeightResult)
	assert.InDelta(t, 123.45, w.Weight, 1e-9)
	assert.InDelta(t, 2.5, w.TareWeight, 1e-9)
	assert.Equal(t, 2, w.Decimals)
	assert.Equal(t, devices.WeightNet, w.WeightType)
	assert.Equal(t, devices.UnitKilogram, w.WeightUnit)
	assert.True(t, w.Registration)
	require.NotNil(t, w.Alibi)
	assert.EqualValues(t, 77, *w.Alibi)
}

func TestCOM3NegativeGross(t *testing.T) {
	res, state := NewScanvaegtCOM3().Decode(com3Frame(1, true, 50, 0, 1, 'g'))
	require.Equal(t, Success, state)
	w := res.(*devices.WeightResult)
	assert.InDelta(t, -5.0, w.Weight, 1e-9)
	assert.Equal(t, devices.WeightGross, w.WeightType)
	assert.Equal(t, devices.UnitGram, w.WeightUnit)
}

func TestCOM3RepeatedAlibiFails(t *testing.T) {
	d := NewScanvaegtCOM3()
	frame := com3Frame(0, false, 10, 0, 5, 'k')

	_, state := d.Decode(frame)
	require.Equal(t, Success, state)
	_, state = d.Decode(frame)
	assert.Equal(t, Fail, state)

	_, state = d.Decode(com3Frame(0, false, 10, 0, 6, 'k'))
	assert.Equal(t, Success, state)
}

func TestCOM3FirstFrameWithZeroAlibi(t *testing.T) {
	_, state := NewScanvaegtCOM3().Decode(com3Frame(0, false, 10, 0, 0, 'k'))
	assert.Equal(t, Success, state)
}

func TestCOM3Framing(t *testing.T) {
	d := NewScanvaegtCOM3()
	frame := com3Frame(2, false, 100, 0, 9, 'k')

	_, state := d.Decode(nil)
	assert.Equal(t, Fail, state)

	_, state = d.Decode([]byte("garbage without start"))
	assert.Equal(t, Fail, state)

	_, state = d.Decode(frame[:30])
	assert.Equal(t, Partial, state)

	bad := append([]byte{}, frame...)
	bad[2] = 'X'
	_, state = d.Decode(bad)
	assert.Equal(t, Fail, state)
}

func csoFrame(status CSOStatus, division CSODivision, weight string, multiplier, sign byte, tare string) []byte {
	frame := []byte{STX, byte(status), byte(division)}
	frame = append(frame, weight...)
	frame = append(frame, multiplier, sign)
	frame = append(frame, tare...)
	frame = append(frame, '0', '0', ETX)
	return frame
}

func TestCSODecode(t *testing.T) {
	status := CSOAlwaysSet | CSONet | CSONoMotion | CSORegistration
	res, state := DecodeScanvaegtCSO(csoFrame(status, 0b10000110, "01234", '1', 0, "00050"))
	require.Equal(t, Success, state)

	w := res.(*devices.WeightResult)
	assert.InDelta(t, 12.34, w.Weight, 1e-9)
	assert.InDelta(t, 0.5, w.TareWeight, 1e-9)
	assert.Equal(t, 2, w.Decimals)
	assert.False(t, w.Motion)
	assert.True(t, w.Registration)
	assert.False(t, w.SwingLoad)
	assert.Equal(t, devices.WeightNet, w.WeightType)
	assert.Equal(t, devices.UnitKilogram, w.WeightUnit)
	assert.Nil(t, w.Alibi)
}

func TestCSONegativePoundsInMotion(t *testing.T) {
	status := CSOAlwaysSet | CSOUnitPound | CSOSwingLoad
	res, state := DecodeScanvaegtCSO(csoFrame(status, 0, "00100", '3', 0x01, "00000"))
	require.Equal(t, Success, state)

	w := res.(*devices.WeightResult)
	assert.InDelta(t, -100, w.Weight, 1e-9)
	assert.Equal(t, 0, w.Decimals)
	assert.True(t, w.Motion)
	assert.True(t, w.SwingLoad)
	assert.Equal(t, devices.UnitPound, w.WeightUnit)
	assert.Equal(t, devices.WeightGross, w.WeightType)
}

func TestCSOInvalidFlagFails(t *testing.T) {
	_, state := DecodeScanvaegtCSO(csoFrame(CSOAlwaysSet|CSOInvalid, 0, "00100", '3', 0, "00000"))
	assert.Equal(t, Fail, state)
}

func TestCSOPartial(t *testing.T) {
	frame := csoFrame(CSOAlwaysSet, 0, "00100", '3', 0, "00000")
	_, state := DecodeScanvaegtCSO(frame[:10])
	assert.Equal(t, Partial, state)
}

func TestCSODivisionBits(t *testing.T) {
	assert.Equal(t, 1, CSODivision(0b10000110).Division())
	assert.Equal(t, 2, CSODivision(0b01000110).Division())
	assert.Equal(t, 5, CSODivision(0b10100110).Division())
	assert.Equal(t, 10, CSODivision(0b11000110).Division())
	assert.Equal(t, 20, CSODivision(0b00100110).Division())
	assert.True(t, CSODivision(0x10).SemiAutoTare())
	assert.True(t, CSODivision(0x08).CentreOfZero())
}

func systekFrame(body string) []byte {
	frame := []byte{STX}
	frame = append(frame, body...)
	return append(frame, ETX)
}

func TestSysTekCustomizedNet(t *testing.T) {
	res, state := DecodeSysTekCustomized(systekFrame("1;  ;18.02.20;08:03;6;1;TEST;30.5;1.9;28.6;kg;0.00;0.00;;252;"))
	require.Equal(t, Success, state)

	w := res.(*devices.WeightResult)
	assert.InDelta(t, 28.6, w.Weight, 1e-9)
	assert.InDelta(t, 1.9, w.TareWeight, 1e-9)
	assert.Equal(t, 1, w.Decimals)
	assert.Equal(t, devices.WeightNet, w.WeightType)
	assert.Equal(t, devices.UnitKilogram, w.WeightUnit)
	require.NotNil(t, w.Alibi)
	assert.EqualValues(t, 252, *w.Alibi)
}

func TestSysTekCustomizedGrossWithComma(t *testing.T) {
	res, state := DecodeSysTekCustomized(systekFrame("1;  ;18.02.20;08:03;6;1;TEST;30,50;0,00;30,50;t;0.00;0.00;;7;"))
	require.Equal(t, Success, state)

	w := res.(*devices.WeightResult)
	assert.InDelta(t, 30.5, w.Weight, 1e-9)
	assert.Equal(t, 2, w.Decimals)
	assert.Equal(t, devices.WeightGross, w.WeightType)
	assert.Equal(t, devices.UnitTon, w.WeightUnit)
}

func TestSysTekCustomizedStripsDLE(t *testing.T) {
	frame := systekFrame("1;  ;18.02.20;08:03;6;1;TEST;30.5;1.9;28.6;kg;0.00;0.00;;252;")
	withDLE := append([]byte{DLE}, frame...)
	_, state := DecodeSysTekCustomized(withDLE)
	assert.Equal(t, Success, state)
}

func TestSysTekCustomizedFraming(t *testing.T) {
	_, state := DecodeSysTekCustomized([]byte("no start byte here"))
	assert.Equal(t, Fail, state)

	_, state = DecodeSysTekCustomized([]byte{STX, '1', ';', '2'})
	assert.Equal(t, Partial, state)

	_, state = DecodeSysTekCustomized(systekFrame("1;2;3;4;5;6;7;8;9;10"))
	assert.Equal(t, Fail, state)

	_, state = DecodeSysTekCustomized(systekFrame("1;  ;18.02.20;08:03;6;1;TEST;abc;1.9;28.6;kg;0.00;0.00;;252;"))
	assert.Equal(t, Fail, state)
}

func TestSysTekExtendedNeverSucceeds(t *testing.T) {
	_, state := DecodeSysTekExtended([]byte("nothing"))
	assert.Equal(t, Fail, state)

	_, state = DecodeSysTekExtended([]byte("XW1N"))
	assert.Equal(t, Partial, state)

	frame := []byte("XW1NS S    12.34 kg")
	frame = append(frame, CR, LF)
	require.Len(t, frame, systekExtendedFrameLen)
	_, state = DecodeSysTekExtended(frame)
	assert.Equal(t, Fail, state)
}

func TestSuffixDecoder(t *testing.T) {
	d := &Suffix{Suffix: []byte{CR, LF}}

	_, state := d.Decode(nil)
	assert.Equal(t, Fail, state)

	_, state = d.Decode([]byte("5901234"))
	assert.Equal(t, Partial, state)

	res, state := d.Decode([]byte("5901234123457\r\n"))
	require.Equal(t, Success, state)
	b := res.(*devices.BarcodeResult)
	assert.Equal(t, "5901234123457", b.Barcode)
	assert.Equal(t, 13, b.Length)
}

func TestPrefixSuffixDecoder(t *testing.T) {
	d := &PrefixSuffix{Prefix: []byte{STX}, Suffix: []byte{ETX}}

	_, state := d.Decode(nil)
	assert.Equal(t, Fail, state)

	_, state = d.Decode([]byte("ABC"))
	assert.Equal(t, Partial, state)

	_, state = d.Decode([]byte{STX, 'A', 'B'})
	assert.Equal(t, Partial, state)

	_, state = d.Decode([]byte{ETX, 'A', STX})
	assert.Equal(t, Fail, state)

	res, state := d.Decode([]byte{STX, 'A', 'B', 'C', ETX})
	require.Equal(t, Success, state)
	assert.Equal(t, "ABC", res.(*devices.BarcodeResult).Barcode)
}

func TestPrefixSuffixMinLength(t *testing.T) {
	d := NewPrefixSuffix([]byte("<"), []byte(">"))
	assert.Equal(t, DefaultPrefixSuffixMinLength, d.MinLength)

	_, state := d.Decode([]byte("<short>"))
	assert.Equal(t, Partial, state)

	body := strings.Repeat("9", 64)

	_, state = d.Decode([]byte(body + ">"))
	assert.Equal(t, Partial, state, "suffix without prefix keeps waiting")

	_, state = d.Decode([]byte(body + "><"))
	assert.Equal(t, Fail, state, "prefix after suffix")

	res, state := d.Decode([]byte("<" + body + ">"))
	require.Equal(t, Success, state)
	assert.Equal(t, body, res.(*devices.BarcodeResult).Barcode)
	assert.Equal(t, 64, res.(*devices.BarcodeResult).Length)
}

func TestDecodeWhole(t *testing.T) {
	res, state := DecodeWhole([]byte("ABC"))
	require.Equal(t, Success, state)
	assert.Equal(t, 3, res.(*devices.BarcodeResult).Length)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	d1, err := r.New(ScaleKind(devices.ScaleScanvaegtCommunicationThree))
	require.NoError(t, err)
	d2, err := r.New(ScaleKind(devices.ScaleScanvaegtCommunicationThree))
	require.NoError(t, err)

	frame := com3Frame(0, false, 1, 0, 3, 'k')
	_, state := d1.Decode(frame)
	require.Equal(t, Success, state)
	_, state = d2.Decode(frame)
	assert.Equal(t, Success, state, "decoders must not share alibi state")

	_, err = r.New(ScaleKind(devices.ScaleToledo))
	assert.ErrorIs(t, err, ErrDecoderNotFound)

	err = r.Register(BarcodeKind(devices.BarcodeCr), func() Decoder { return DecoderFunc(DecodeWhole) })
	assert.ErrorIs(t, err, ErrDecoderExists)
}

func TestRegistryRecoversPanics(t *testing.T) {
	r := NewRegistry()
	kind := ScaleKind(devices.ScaleToledo)
	require.NoError(t, r.Register(kind, func() Decoder {
		return DecoderFunc(func([]byte) (devices.Result, State) { panic("boom") })
	}))

	d, err := r.New(kind)
	require.NoError(t, err)
	res, state := d.Decode([]byte("x"))
	assert.Nil(t, res)
	assert.Equal(t, Fail, state)
}

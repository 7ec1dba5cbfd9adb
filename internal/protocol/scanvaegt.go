package protocol

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

// Scanvaegt COM3/SV3, one frame per weighing, 60 bytes:
//
//	offset  len  field
//	0       1    STX
//	1       3    header "CW1"
//	4       3    station number
//	7       1    record type (0 single, 1 summation)
//	8       1    measurement (0 exact, 1 approx)
//	9       1    decimals
//	10      2    division (01=1 02=2 03=5 04=10 05=20)
//	12      1    sign ('-' negative, space positive)
//	13      10   weight
//	23      1    unit (t k g l o)
//	24      1    tare type
//	25      6    tare
//	31      2    indicator
//	33      12   program
//	45      11   alibi
//	56      3    checksum area, not verified
//	59      1    ETX
const com3FrameLen = 60

var com3Header = []byte{STX, 'C', 'W', '1'}

// ScanvaegtCOM3 remembers the last alibi number it emitted, so a repeated
// transmission of the same weighing decodes as Fail. One instance per device;
// not safe for concurrent use.
type ScanvaegtCOM3 struct {
	lastAlibi int64
	seen      bool
}

func NewScanvaegtCOM3() *ScanvaegtCOM3 {
	return &ScanvaegtCOM3{}
}

func (d *ScanvaegtCOM3) Decode(buf []byte) (devices.Result, State) {
	if len(buf) == 0 || bytes.IndexByte(buf, STX) < 0 {
		return nil, Fail
	}
	if len(buf) < com3FrameLen || bytes.IndexByte(buf, ETX) < 0 {
		return nil, Partial
	}

	stx := bytes.IndexByte(buf, STX)
	etx := bytes.IndexByte(buf, ETX)
	if stx >= etx || etx-stx+1 != com3FrameLen {
		return nil, Fail
	}

	frame := buf[stx : etx+1]
	if !bytes.HasPrefix(frame, com3Header) {
		return nil, Fail
	}

	decimals, err := strconv.Atoi(string(frame[9:10]))
	if err != nil {
		return nil, Fail
	}
	weightRaw, err := parseIntField(frame[13:23])
	if err != nil {
		return nil, Fail
	}
	tareRaw, err := parseIntField(frame[25:31])
	if err != nil {
		return nil, Fail
	}
	alibi, err := parseIntField(frame[45:56])
	if err != nil {
		return nil, Fail
	}

	scale := math.Pow10(decimals)
	weight := float64(weightRaw) / scale
	tare := float64(tareRaw) / scale
	if frame[12] == '-' {
		weight = -weight
	}

	weightType := devices.WeightGross
	if tare > 0 {
		weightType = devices.WeightNet
	}

	if d.seen && d.lastAlibi == alibi {
		return nil, Fail
	}
	d.lastAlibi = alibi
	d.seen = true

	return &devices.WeightResult{
		Weight:       weight,
		TareWeight:   tare,
		Decimals:     decimals,
		Registration: true,
		WeightType:   weightType,
		WeightUnit:   com3Unit(frame[23]),
		Alibi:        &alibi,
	}, Success
}

func com3Unit(c byte) devices.WeightUnit {
	switch c {
	case 't':
		return devices.UnitTon
	case 'g':
		return devices.UnitGram
	case 'l':
		return devices.UnitPound
	case 'o':
		return devices.UnitOunce
	default:
		return devices.UnitKilogram
	}
}

func parseIntField(field []byte) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(string(field)), 10, 64)
}

// Scanvaegt CSO, continuous output, 18 bytes:
//
//	offset  len  field
//	0       1    STX
//	1       1    ID1 status bits (CSOStatus)
//	2       1    ID2 division bits (CSODivision)
//	3       5    weight
//	8       1    multiplier ('0' 3 dec, '1' 2 dec, '2' 1 dec, '3' 0 dec)
//	9       1    sign (bit 0 set = negative)
//	10      5    tare
//	15      2    checksum
//	17      1    ETX
const csoFrameLen = 18

// CSOStatus is the ID1 byte of a CSO frame.
//
//	bit0 unit (0 kg, 1 lb)
//	bit1 swing load
//	bit2 always 1
//	bit3 weight type (0 gross, 1 net)
//	bit4 info (0 same, 1 new)
//	bit5 no motion
//	bit6 invalid
//	bit7 registration
type CSOStatus byte

const (
	CSOUnitPound CSOStatus = 1 << iota
	CSOSwingLoad
	CSOAlwaysSet
	CSONet
	CSONewInfo
	CSONoMotion
	CSOInvalid
	CSORegistration
)

func (s CSOStatus) Has(flag CSOStatus) bool { return s&flag != 0 }

// CSODivision is the ID2 byte of a CSO frame. Bits 7..5 carry the division,
// bit 4 semi-auto tare mode, bit 3 inside centre of zero, bits 2..0 are 110.
type CSODivision byte

func (d CSODivision) Division() int {
	switch byte(d) >> 5 {
	case 0b100:
		return 1
	case 0b010:
		return 2
	case 0b101:
		return 5
	case 0b110:
		return 10
	case 0b001:
		return 20
	default:
		return 0
	}
}

func (d CSODivision) SemiAutoTare() bool { return d&0x10 != 0 }

func (d CSODivision) CentreOfZero() bool { return d&0x08 != 0 }

func DecodeScanvaegtCSO(buf []byte) (devices.Result, State) {
	if len(buf) == 0 || bytes.IndexByte(buf, STX) < 0 {
		return nil, Fail
	}
	if len(buf) < csoFrameLen || bytes.IndexByte(buf, ETX) < 0 {
		return nil, Partial
	}

	stx := bytes.IndexByte(buf, STX)
	etx := bytes.IndexByte(buf, ETX)
	if stx >= etx || etx-stx+1 != csoFrameLen {
		return nil, Fail
	}
	frame := buf[stx : etx+1]

	status := CSOStatus(frame[1])
	if status.Has(CSOInvalid) {
		return nil, Fail
	}

	weightRaw, err := parseIntField(frame[3:8])
	if err != nil {
		return nil, Fail
	}
	tareRaw, err := parseIntField(frame[10:15])
	if err != nil {
		return nil, Fail
	}

	decimals := 0
	switch frame[8] {
	case '0':
		decimals = 3
	case '1':
		decimals = 2
	case '2':
		decimals = 1
	}
	divisor := math.Pow10(decimals)

	weight := float64(weightRaw) / divisor
	tare := float64(tareRaw) / divisor
	if frame[9]&0x01 != 0 {
		weight = -weight
	}

	unit := devices.UnitKilogram
	if status.Has(CSOUnitPound) {
		unit = devices.UnitPound
	}
	weightType := devices.WeightGross
	if status.Has(CSONet) {
		weightType = devices.WeightNet
	}

	return &devices.WeightResult{
		Weight:       weight,
		TareWeight:   tare,
		Decimals:     decimals,
		Motion:       !status.Has(CSONoMotion),
		Registration: status.Has(CSORegistration),
		SwingLoad:    status.Has(CSOSwingLoad),
		WeightType:   weightType,
		WeightUnit:   unit,
	}, Success
}

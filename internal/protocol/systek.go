package protocol

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

// SysTek customized protocol (IT6000, IT8000 and similar), STX ... ETX
// around 16 semicolon separated fields, DLE bytes stripped:
//
//	1;  ;18.02.20;08:03;6;1;TEST;30.5;1.9;28.6;kg;0.00;0.00;;252;
//	0   1 date     time  batch item, product no, name, gross(7) tare(8)
//	net(9) unit(10) ? ? ? alibi(14)
const (
	systekFieldCount = 16
	systekMinLen     = 10

	systekGross = 7
	systekTare  = 8
	systekNet   = 9
	systekUnit  = 10
	systekAlibi = 14
)

func DecodeSysTekCustomized(buf []byte) (devices.Result, State) {
	if len(buf) == 0 || bytes.IndexByte(buf, STX) < 0 {
		return nil, Fail
	}

	data := bytes.ReplaceAll(buf, []byte{DLE}, nil)
	if len(data) < systekMinLen || bytes.IndexByte(data, ETX) < 0 {
		return nil, Partial
	}

	stx := bytes.IndexByte(data, STX)
	etx := bytes.IndexByte(data, ETX)
	if stx >= etx {
		return nil, Fail
	}

	fields := strings.Split(string(data[stx+1:etx]), ";")
	if len(fields) != systekFieldCount {
		return nil, Fail
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	gross, _, err := parseDecimal(fields[systekGross])
	if err != nil {
		return nil, Fail
	}
	tare, _, err := parseDecimal(fields[systekTare])
	if err != nil {
		return nil, Fail
	}
	net, decimals, err := parseDecimal(fields[systekNet])
	if err != nil {
		return nil, Fail
	}
	alibi, err := strconv.ParseInt(fields[systekAlibi], 10, 64)
	if err != nil {
		return nil, Fail
	}

	weight, weightType := gross, devices.WeightGross
	if tare > 0 {
		weight, weightType = net, devices.WeightNet
	}

	return &devices.WeightResult{
		Weight:       weight,
		TareWeight:   tare,
		Decimals:     decimals,
		Registration: true,
		WeightType:   weightType,
		WeightUnit:   systekUnitOf(fields[systekUnit]),
		Alibi:        &alibi,
	}, Success
}

// parseDecimal accepts '.' or ',' as separator and reports the number of
// fractional digits written.
func parseDecimal(raw string) (float64, int, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, 0, err
	}
	decimals := 0
	if dot := strings.IndexByte(normalized, '.'); dot >= 0 {
		decimals = len(normalized) - dot - 1
	}
	return value, decimals, nil
}

func systekUnitOf(raw string) devices.WeightUnit {
	switch strings.ToLower(raw) {
	case "t":
		return devices.UnitTon
	case "g":
		return devices.UnitGram
	case "lb":
		return devices.UnitPound
	default:
		return devices.UnitKilogram
	}
}

// SysTek extended standard protocol, 21 bytes terminated by CR LF:
//
//	offset  len  field
//	0       2    header "XW"
//	2       1    range (1, 2 or space)
//	3       1    weight type (N net, G gross)
//	4       1    motion (M motion, S settled)
//	5       1    zero (Z in zero range, else space)
//	6       1    signal (S traffic light)
//	7       9    weight, right justified with sign and decimal separator
//	16      1    space
//	17      2    unit (t, kg, g, lb) left justified
//	19      2    CR LF
//
// Framing is validated but field extraction has not been verified against
// real indicator captures, so a complete frame still decodes as Fail.
const systekExtendedFrameLen = 21

var systekExtendedHeader = []byte("XW")

func DecodeSysTekExtended(buf []byte) (devices.Result, State) {
	if len(buf) == 0 || !bytes.Contains(buf, systekExtendedHeader) {
		return nil, Fail
	}

	data := bytes.ReplaceAll(buf, []byte{DLE}, nil)
	if len(data) < systekExtendedFrameLen || bytes.IndexByte(data, CR) < 0 || bytes.IndexByte(data, LF) < 0 {
		return nil, Partial
	}

	xw := bytes.Index(data, systekExtendedHeader)
	cr := bytes.IndexByte(data[xw:], CR)
	if cr < 0 {
		return nil, Fail
	}
	if cr+2 != systekExtendedFrameLen || len(data) < xw+systekExtendedFrameLen || data[xw+cr+1] != LF {
		return nil, Fail
	}

	// TODO: extract weight fields once validated against IT6000/IT8000 captures.
	return nil, Fail
}

package devices

type ScaleType int

const (
	ScaleScanvaegt ScaleType = iota
	ScaleScanvaegtSv10
	ScaleScanvaegtSv11
	ScaleMarel
	ScaleMarelM1100
	ScaleMarelM2200
	ScaleSysTek
	ScaleSysTekITx000
	ScaleMettlerToledo
)

var scaleTypeNames = enumNames[ScaleType]{
	"Scanvaegt", "ScanvaegtSv10", "ScanvaegtSv11",
	"Marel", "MarelM1100", "MarelM2200",
	"SysTek", "SysTekITx000", "MettlerToledo",
}

func (t ScaleType) String() string { return scaleTypeNames.name(t) }

func ParseScaleType(raw string) (ScaleType, error) { return scaleTypeNames.parse("scale type", raw) }

// ScaleProtocol is the wire format a scale indicator sends.
type ScaleProtocol int

const (
	ScaleScanvaegtContinuousSerialOutput ScaleProtocol = iota
	ScaleScanvaegtCommunicationThree
	ScaleMarelM1100Protocol
	ScaleMarelM2200Protocol
	ScaleMarelPort52253
	ScaleSysTekCustomizedProtocol
	ScaleSysTekExtendedStandardProtocol
	ScaleToledo
)

var scaleProtocolNames = enumNames[ScaleProtocol]{
	"ScanvaegtContinuousSerialOutput", "ScanvaegtCommunicationThree",
	"MarelM1100", "MarelM2200", "MarelPort52253",
	"SysTekCustomizedProtocol", "SysTekExtentedStandardProtocol", "Toledo",
}

func (p ScaleProtocol) String() string { return scaleProtocolNames.name(p) }

func ParseScaleProtocol(raw string) (ScaleProtocol, error) {
	return scaleProtocolNames.parse("scale protocol", raw)
}

type WeightType int

const (
	WeightGross WeightType = iota
	WeightNet
)

var weightTypeNames = enumNames[WeightType]{"Gross", "Net"}

func (t WeightType) String() string { return weightTypeNames.name(t) }

type WeightUnit int

const (
	UnitTon WeightUnit = iota
	UnitKilogram
	UnitGram
	UnitPound
	UnitOunce
)

var weightUnitNames = enumNames[WeightUnit]{"Ton", "Kilogram", "Gram", "Pound", "Ounce"}

func (u WeightUnit) String() string { return weightUnitNames.name(u) }

// WeightResult is one decoded weighing. Alibi is nil for protocols without one.
type WeightResult struct {
	Weight       float64    `json:"weight" msgpack:"weight"`
	TareWeight   float64    `json:"tare_weight" msgpack:"tare_weight"`
	Decimals     int        `json:"decimals" msgpack:"decimals"`
	Motion       bool       `json:"motion" msgpack:"motion"`
	Registration bool       `json:"registration" msgpack:"registration"`
	SwingLoad    bool       `json:"swing_load" msgpack:"swing_load"`
	WeightType   WeightType `json:"weight_type" msgpack:"weight_type"`
	WeightUnit   WeightUnit `json:"weight_unit" msgpack:"weight_unit"`
	Alibi        *int64     `json:"alibi,omitempty" msgpack:"alibi,omitempty"`
}

func (*WeightResult) isResult() {}

func (r *WeightResult) NetWeight() float64 {
	if r.WeightType == WeightNet {
		return r.Weight
	}
	return r.Weight - r.TareWeight
}

func (r *WeightResult) GrossWeight() float64 {
	if r.WeightType == WeightGross {
		return r.Weight
	}
	return r.Weight + r.TareWeight
}

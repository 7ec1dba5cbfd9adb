package devices

// Label printer settings are carried for the hosting application. Printer
// jobs are not formatted here.

type LabelPrinterType int

const (
	PrinterIntermec LabelPrinterType = iota
	PrinterHoneywell
	PrinterZebra
	PrinterZebraCompatible
)

var labelPrinterTypeNames = enumNames[LabelPrinterType]{"Intermec", "Honeywell", "Zebra", "ZebraCompatible"}

func (t LabelPrinterType) String() string { return labelPrinterTypeNames.name(t) }

func ParseLabelPrinterType(raw string) (LabelPrinterType, error) {
	return labelPrinterTypeNames.parse("label printer type", raw)
}

type LabelPrinterProtocol int

const (
	PrinterDirectProtocol LabelPrinterProtocol = iota
	PrinterZpl2
)

var labelPrinterProtocolNames = enumNames[LabelPrinterProtocol]{"DirectProtocol", "Zpl2"}

func (p LabelPrinterProtocol) String() string { return labelPrinterProtocolNames.name(p) }

func ParseLabelPrinterProtocol(raw string) (LabelPrinterProtocol, error) {
	return labelPrinterProtocolNames.parse("label printer protocol", raw)
}

type LabelPrinterPrintMode int

const (
	PrintTearOff LabelPrinterPrintMode = iota
	PrintPeelOff
	PrintRewind
)

var printModeNames = enumNames[LabelPrinterPrintMode]{"TearOff", "PeelOff", "Rewind"}

func (m LabelPrinterPrintMode) String() string { return printModeNames.name(m) }

func ParseLabelPrinterPrintMode(raw string) (LabelPrinterPrintMode, error) {
	return printModeNames.parse("label printer print mode", raw)
}

type LabelPrinterMediaType int

const (
	MediaLabelWithGaps LabelPrinterMediaType = iota
	MediaTicketWithMark
	MediaContinuous
	MediaVariable
	MediaFixedLength
)

var mediaTypeNames = enumNames[LabelPrinterMediaType]{"LabelWithGaps", "TicketWithMark", "Continuous", "Variable", "FixedLength"}

func (m LabelPrinterMediaType) String() string { return mediaTypeNames.name(m) }

func ParseLabelPrinterMediaType(raw string) (LabelPrinterMediaType, error) {
	return mediaTypeNames.parse("label printer media type", raw)
}

type LabelPrinterPaperType int

const (
	PaperDirectThermal LabelPrinterPaperType = iota
	PaperThermalTransferRibbon
)

var paperTypeNames = enumNames[LabelPrinterPaperType]{"DirectThermal", "ThermalTransferRibbon"}

func (p LabelPrinterPaperType) String() string { return paperTypeNames.name(p) }

func ParseLabelPrinterPaperType(raw string) (LabelPrinterPaperType, error) {
	return paperTypeNames.parse("label printer paper type", raw)
}

var validDpi = map[int]bool{203: true, 300: true, 600: true}

var validRotate = map[int]bool{0: true, 90: true, 180: true, 270: true}

func ValidDpi(dpi int) bool { return validDpi[dpi] }

func ValidRotate(deg int) bool { return validRotate[deg] }

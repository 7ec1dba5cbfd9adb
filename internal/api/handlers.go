package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/NowakAdmin/DeviceHub/internal/center"
	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

// DeviceCenter is the part of the device center the API drives.
type DeviceCenter interface {
	Devices() []center.DeviceInfo
	Device(name string) (center.DeviceInfo, bool)
	OpenDevice(name string) bool
	CloseDevice(name string) bool
	TransmitText(name, text string) bool
	TransmitBytes(name string, raw []byte) bool
	SimulateWeightResult(name string, clientDeviceID *int16, result devices.WeightResult)
	SimulateBarcodeResult(name string, clientDeviceID *int16, result devices.BarcodeResult)
	Subscribe() *center.Subscription
}

type Handler struct {
	center  DeviceCenter
	version string
}

func NewHandler(c DeviceCenter, version string) *Handler {
	return &Handler{center: c, version: version}
}

func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
		"devices": len(h.center.Devices()),
	})
}

func (h *Handler) HandleListDevices(c echo.Context) error {
	return c.JSON(http.StatusOK, h.center.Devices())
}

func (h *Handler) HandleGetDevice(c echo.Context) error {
	info, err := h.device(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) HandleOpenDevice(c echo.Context) error {
	info, err := h.device(c)
	if err != nil {
		return err
	}
	if !h.center.OpenDevice(info.Device.Name) {
		return NewConflictError("device connection is not finalized: " + info.Device.Name)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) HandleCloseDevice(c echo.Context) error {
	info, err := h.device(c)
	if err != nil {
		return err
	}
	if !h.center.CloseDevice(info.Device.Name) {
		return NewConflictError("device connection is not finalized: " + info.Device.Name)
	}
	return c.NoContent(http.StatusAccepted)
}

// TransmitRequest carries either text, encoded with the device encoding, or
// hex encoded raw bytes.
type TransmitRequest struct {
	Text string `json:"text,omitempty"`
	Hex  string `json:"hex,omitempty"`
}

func (h *Handler) HandleTransmit(c echo.Context) error {
	info, err := h.device(c)
	if err != nil {
		return err
	}

	var req TransmitRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	name := info.Device.Name
	var ok bool
	switch {
	case req.Text != "" && req.Hex != "":
		return NewBadRequestError("set either text or hex, not both", nil)
	case req.Hex != "":
		raw, decodeErr := hex.DecodeString(strings.ReplaceAll(req.Hex, " ", ""))
		if decodeErr != nil {
			return NewBadRequestError("invalid hex payload", decodeErr)
		}
		ok = h.center.TransmitBytes(name, raw)
	case req.Text != "":
		ok = h.center.TransmitText(name, req.Text)
	default:
		return NewBadRequestError("text or hex is required", nil)
	}

	if !ok {
		return NewConflictError("device connection is not finalized: " + name)
	}
	return c.NoContent(http.StatusAccepted)
}

type SimulateWeightRequest struct {
	ClientDeviceID *int16 `json:"client_device_id,omitempty"`
	devices.WeightResult
}

type SimulateBarcodeRequest struct {
	ClientDeviceID *int16 `json:"client_device_id,omitempty"`
	devices.BarcodeResult
}

// Simulated results are published for any name, registered or not.
func (h *Handler) HandleSimulateWeight(c echo.Context) error {
	var req SimulateWeightRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	h.center.SimulateWeightResult(c.Param("name"), req.ClientDeviceID, req.WeightResult)
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) HandleSimulateBarcode(c echo.Context) error {
	var req SimulateBarcodeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Length == 0 {
		req.Length = len(req.Barcode)
	}
	h.center.SimulateBarcodeResult(c.Param("name"), req.ClientDeviceID, req.BarcodeResult)
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) device(c echo.Context) (center.DeviceInfo, error) {
	name := c.Param("name")
	info, ok := h.center.Device(name)
	if !ok {
		return center.DeviceInfo{}, NewNotFoundError("device", name)
	}
	return info, nil
}

var errUnknownCodec = errors.New("unknown codec")

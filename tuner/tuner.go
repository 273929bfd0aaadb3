// Package tuner implements the driver for the NXP TEA5767 FM radio
// receiver, a single-chip tuner controlled through five I2C registers.
//
// The original driver was written in C++ for the Arduino platform and
// can be found at https://github.com/CarlosEgea/tea5767_i2c (MIT License).
//
// To read about the specifications of the receiver, read the following
// document: https://www.nxp.com/docs/en/data-sheet/TEA5767HN.pdf
package tuner

import (
	"fmt"
	"math"

	"gobot.io/x/gobot"
	"gobot.io/x/gobot/drivers/i2c"
)

// Misc constants.
//
//goland:noinspection GoUnusedConst,GoUnnecessarilyExportedIdentifiers,GoSnakeCaseUsage
const (
	// Address is the fixed I2C device address of the TEA5767.
	Address = 0x60

	// REGISTERS is the number of bytes in the chip's register file.
	// Every bus transaction, read or write, moves exactly this many.
	REGISTERS = 5
)

// Write register bits. The chip has no sub-addresses: a write is
// always the five data bytes in order, so each constant below names a
// bit inside one of them.
//
//goland:noinspection GoUnusedConst,GoUnnecessarilyExportedIdentifiers,GoSnakeCaseUsage
const (
	// WR1_MUTE silences both audio channels.
	WR1_MUTE = 0x80

	// WR1_SEARCH_MODE activates the station search.
	WR1_SEARCH_MODE = 0x40

	// WR3_SEARCH_UP searches towards higher frequencies.
	WR3_SEARCH_UP = 0x80

	// WR3_SSL_MASK covers the two search-stop-level bits.
	WR3_SSL_MASK = 0x60

	// WR3_HLSI selects high-side injection for the local oscillator.
	WR3_HLSI = 0x10

	// WR3_MONO forces mono reception.
	WR3_MONO = 0x08

	// WR3_MUTE_RIGHT mutes the right audio channel.
	WR3_MUTE_RIGHT = 0x04

	// WR3_MUTE_LEFT mutes the left audio channel.
	WR3_MUTE_LEFT = 0x02

	// WR4_STANDBY puts the chip in its low-power mode.
	WR4_STANDBY = 0x40

	// WR4_BAND_JP narrows the band limits to the Japanese FM band.
	WR4_BAND_JP = 0x20

	// WR4_XTAL must be set when a 32.768 kHz crystal drives the PLL reference.
	WR4_XTAL = 0x10

	// WR4_SOFT_MUTE enables the soft mute.
	WR4_SOFT_MUTE = 0x08

	// WR4_HCC enables the high cut control.
	WR4_HCC = 0x04

	// WR4_SNC enables stereo noise cancelling.
	WR4_SNC = 0x02

	// WR5_DTC selects the 75 us de-emphasis time constant instead of 50 us.
	WR5_DTC = 0x40
)

// Read register bits, again positional over the five bytes returned
// by the chip.
//
//goland:noinspection GoUnusedConst,GoUnnecessarilyExportedIdentifiers,GoSnakeCaseUsage
const (
	// RD1_READY signals that a tune or search operation completed.
	RD1_READY = 0x80

	// RD1_BAND_LIMIT signals that a search hit the band limit.
	RD1_BAND_LIMIT = 0x40

	// RD3_STEREO signals stereo reception.
	RD3_STEREO = 0x80

	// RD4_LEVEL_MASK covers the four ADC signal level bits.
	RD4_LEVEL_MASK = 0xF0
)

// PLL constants for a 32.768 kHz crystal with high-side injection.
const (
	pllReferenceHz     = 32768
	intermediateFreqHz = 225000
	pllMask            = 0x3FFF
)

// Band selects the tuning range of the receiver.
type Band int

// The two band limit modes the chip supports.
//
//goland:noinspection GoUnnecessarilyExportedIdentifiers
const (
	// BandEU tunes the European/US FM band, 87.5 MHz to 108 MHz.
	BandEU Band = iota

	// BandJP tunes the Japanese FM band, 76 MHz to 91 MHz.
	BandJP
)

// Bounds returns the lowest and highest tunable frequency of the band in MHz.
func (b Band) Bounds() (min, max float64) {
	if b == BandJP {
		return 76.0, 91.0
	}
	return 87.5, 108.0
}

// Clamp adjusts freq to the nearest frequency inside the band.
func (b Band) Clamp(freq float64) float64 {
	min, max := b.Bounds()
	if freq < min {
		return min
	}
	if freq > max {
		return max
	}
	return freq
}

// SearchStopLevel is the ADC threshold a station must reach before
// a search stops on it.
type SearchStopLevel uint8

// The three thresholds the chip understands.
//
//goland:noinspection GoUnnecessarilyExportedIdentifiers
const (
	SearchStopLow  SearchStopLevel = 5
	SearchStopMid  SearchStopLevel = 7
	SearchStopHigh SearchStopLevel = 10
)

// sslBits translates the ADC threshold into the two SSL register bits.
func (l SearchStopLevel) sslBits() byte {
	switch l {
	case SearchStopLow:
		return 1 << 5
	case SearchStopMid:
		return 2 << 5
	case SearchStopHigh:
		return 3 << 5
	}
	return 0
}

// SearchDirection tells a station search which way to scan.
type SearchDirection int

//goland:noinspection GoUnnecessarilyExportedIdentifiers
const (
	// SearchUp scans towards the upper band limit.
	SearchUp SearchDirection = iota

	// SearchDown scans towards the lower band limit.
	SearchDown
)

// Status holds the decoded content of the chip's read registers.
type Status struct {
	// Ready reports that the last tune or search operation finished.
	Ready bool

	// BandLimitReached reports that a search ran into the band limit
	// without finding a station.
	BandLimitReached bool

	// Stereo reports stereo reception of the current station.
	Stereo bool

	// SignalLevel is the ADC level of the current station, 0 to 15.
	SignalLevel uint8

	// Frequency is the currently tuned frequency in MHz.
	Frequency float64

	// PLL is the raw 14 bit PLL word the frequency was decoded from.
	PLL uint16
}

// TEA5767Driver holds the implementation to talk to the TEA5767
// FM receiver over I2C.
//
//goland:noinspection GoUnnecessarilyExportedIdentifiers
type TEA5767Driver struct {
	name string

	i2cAddr      int
	conn         i2c.Connection
	i2cConnector i2c.Connector
	i2c.Config

	debugMode bool
	debugLog  func(format string, v ...interface{})
	log       func(format string, v ...interface{})

	band      Band
	frequency float64

	mute      bool
	softMute  bool
	muteLeft  bool
	muteRight bool
	standby   bool

	forcedMono            bool
	stereoNoiseCancelling bool
	highCutControl        bool
	deEmphasis75          bool

	searchActive    bool
	searchDirection SearchDirection
	searchStopLevel SearchStopLevel
}

// Name of our device.
func (d *TEA5767Driver) Name() string {
	return d.name
}

// SetName set the name of our device.
func (d *TEA5767Driver) SetName(name string) {
	d.name = name
}

// Start powers up the receiver and tunes the configured station.
func (d *TEA5767Driver) Start() error {
	bus := d.GetBusOrDefault(d.i2cConnector.GetDefaultBus())
	var err error
	d.conn, err = d.i2cConnector.GetConnection(d.i2cAddr, bus)
	if err != nil {
		return err
	}

	if err = d.writeRegisters(); err != nil {
		return fmt.Errorf("couldn't program the tuner: %v", err)
	}

	// A status read doubles as the presence check, the chip has no
	// identification register to probe instead.
	status, err := d.Status()
	if err != nil {
		return fmt.Errorf("couldn't find tuner: %v", err)
	}

	if d.debugMode {
		d.debugLog("Tuned into %.2f MHz\n", status.Frequency)
		d.debugLog("Ready: %t stereo: %t level: %d\n", status.Ready, status.Stereo, status.SignalLevel)
	}

	return nil
}

// Halt stops the device in a graceful way by putting it in standby.
func (d *TEA5767Driver) Halt() error {
	return d.SetStandby(true)
}

// Connection retrieves the i2c connection to the device.
func (d *TEA5767Driver) Connection() gobot.Connection {
	return d.i2cConnector.(gobot.Connection)
}

// Band returns the configured band limit mode.
func (d *TEA5767Driver) Band() Band {
	return d.band
}

// SetStation tunes the receiver to the given frequency in MHz.
// Frequencies outside the band are adjusted to the nearest band limit,
// and a running search is cancelled.
func (d *TEA5767Driver) SetStation(freq float64) error {
	adjusted := d.band.Clamp(freq)
	if adjusted != freq {
		d.log("Frequency %.2f MHz out of band bounds, tuning %.2f MHz instead\n", freq, adjusted)
	}

	d.frequency = adjusted
	d.searchActive = false

	return d.writeRegisters()
}

// SetStationIncrement moves the tuned frequency by delta MHz, e.g.
// 0.1 for one channel up or -0.1 for one channel down.
func (d *TEA5767Driver) SetStationIncrement(delta float64) error {
	if delta >= 0 {
		d.searchDirection = SearchUp
	} else {
		d.searchDirection = SearchDown
	}

	return d.SetStation(d.frequency + delta)
}

// Station reads back the frequency the chip is currently tuned to.
// During a search this is the station the chip settled on, not the
// one previously programmed.
func (d *TEA5767Driver) Station() (float64, error) {
	status, err := d.Status()
	if err != nil {
		return 0, err
	}

	// keep our state in sync with what the search found
	d.frequency = status.Frequency

	return status.Frequency, nil
}

// Search starts a station search from the current frequency in the
// given direction. The search stops on the first station whose signal
// reaches the stop level; poll Status until Ready is set, then check
// BandLimitReached.
func (d *TEA5767Driver) Search(direction SearchDirection, stop SearchStopLevel) error {
	d.searchActive = true
	d.searchDirection = direction
	d.searchStopLevel = stop

	// One channel step away from the current station, otherwise the
	// search immediately stops where it started.
	if direction == SearchUp {
		d.frequency = d.band.Clamp(d.frequency + 0.1)
	} else {
		d.frequency = d.band.Clamp(d.frequency - 0.1)
	}

	return d.writeRegisters()
}

// SetMute silences or restores both audio channels.
func (d *TEA5767Driver) SetMute(mute bool) error {
	d.mute = mute
	return d.writeRegisters()
}

// SetSoftMute turns the soft mute on or off. Soft mute reduces the
// hissing on weak stations at the cost of some distortion.
func (d *TEA5767Driver) SetSoftMute(mute bool) error {
	d.softMute = mute
	return d.writeRegisters()
}

// SetMuteLeft silences or restores the left audio channel.
func (d *TEA5767Driver) SetMuteLeft(mute bool) error {
	d.muteLeft = mute
	return d.writeRegisters()
}

// SetMuteRight silences or restores the right audio channel.
func (d *TEA5767Driver) SetMuteRight(mute bool) error {
	d.muteRight = mute
	return d.writeRegisters()
}

// SetStandby puts the chip in or takes it out of its low-power mode.
// Register state is kept, so waking up restores the tuned station.
func (d *TEA5767Driver) SetStandby(standby bool) error {
	d.standby = standby
	return d.writeRegisters()
}

// SetStereo enables stereo reception; passing false forces mono.
func (d *TEA5767Driver) SetStereo(stereo bool) error {
	d.forcedMono = !stereo
	return d.writeRegisters()
}

// SetStereoNoiseCancelling turns stereo noise cancelling on or off.
func (d *TEA5767Driver) SetStereoNoiseCancelling(enabled bool) error {
	d.stereoNoiseCancelling = enabled
	return d.writeRegisters()
}

// SetHighCutControl turns the high cut control on or off.
func (d *TEA5767Driver) SetHighCutControl(enabled bool) error {
	d.highCutControl = enabled
	return d.writeRegisters()
}

// Ready reports whether the last tune or search operation completed.
func (d *TEA5767Driver) Ready() (bool, error) {
	status, err := d.Status()
	if err != nil {
		return false, err
	}
	return status.Ready, nil
}

// Status performs a full register read and decodes it.
func (d *TEA5767Driver) Status() (Status, error) {
	values, err := d.readRegisters()
	if err != nil {
		return Status{}, err
	}

	status := decodeStatus(values)
	if d.debugMode {
		d.debugLog("*** Status: %s -> %+v\n", d.sliceToString(values[:]), status)
	}

	return status, nil
}

// pllWord computes the 14 bit PLL divider word for the given frequency
// in MHz, assuming high-side injection and the 32.768 kHz reference.
func pllWord(freq float64) uint16 {
	n := 4 * (freq*1e6 + intermediateFreqHz) / pllReferenceHz
	return uint16(math.Round(n)) & pllMask
}

// pllFrequency is the inverse of pllWord.
func pllFrequency(pll uint16) float64 {
	hz := float64(pll)*pllReferenceHz/4 - intermediateFreqHz
	return hz / 1e6
}

// registers encodes the driver state into the five write bytes of the
// chip's memory map.
func (d *TEA5767Driver) registers() [REGISTERS]byte {
	var regs [REGISTERS]byte

	pll := pllWord(d.frequency)
	regs[0] = byte(pll >> 8)
	regs[1] = byte(pll & 0xFF)

	if d.mute {
		regs[0] |= WR1_MUTE
	}
	if d.searchActive {
		regs[0] |= WR1_SEARCH_MODE
	}

	regs[2] = WR3_HLSI
	if d.searchDirection == SearchUp {
		regs[2] |= WR3_SEARCH_UP
	}
	regs[2] |= d.searchStopLevel.sslBits()
	if d.forcedMono {
		regs[2] |= WR3_MONO
	}
	if d.muteRight {
		regs[2] |= WR3_MUTE_RIGHT
	}
	if d.muteLeft {
		regs[2] |= WR3_MUTE_LEFT
	}

	regs[3] = WR4_XTAL
	if d.standby {
		regs[3] |= WR4_STANDBY
	}
	if d.band == BandJP {
		regs[3] |= WR4_BAND_JP
	}
	if d.softMute {
		regs[3] |= WR4_SOFT_MUTE
	}
	if d.highCutControl {
		regs[3] |= WR4_HCC
	}
	if d.stereoNoiseCancelling {
		regs[3] |= WR4_SNC
	}

	if d.deEmphasis75 {
		regs[4] = WR5_DTC
	}

	return regs
}

// decodeStatus translates the five read bytes into a Status.
func decodeStatus(values [REGISTERS]byte) Status {
	pll := uint16(values[0]&0x3F)<<8 | uint16(values[1])

	return Status{
		Ready:            values[0]&RD1_READY != 0,
		BandLimitReached: values[0]&RD1_BAND_LIMIT != 0,
		Stereo:           values[2]&RD3_STEREO != 0,
		SignalLevel:      values[3] >> 4,
		Frequency:        pllFrequency(pll),
		PLL:              pll,
	}
}

// Write the full register file to the chip.
func (d *TEA5767Driver) writeRegisters() error {
	regs := d.registers()
	if d.debugMode {
		d.debugLog("*** Write: %s\n", d.sliceToString(regs[:]))
	}

	n, err := d.conn.Write(regs[:])
	if err != nil {
		return err
	}
	if n != REGISTERS {
		return fmt.Errorf("short register write, wrote %d of %d bytes", n, REGISTERS)
	}

	return nil
}

// Read the full register file from the chip.
func (d *TEA5767Driver) readRegisters() ([REGISTERS]byte, error) {
	var values [REGISTERS]byte

	n, err := d.conn.Read(values[:])
	if err != nil {
		return values, err
	}
	if n != REGISTERS {
		return values, fmt.Errorf("failed to read %d bytes from the line, read %d -> %s", REGISTERS, n, d.sliceToString(values[:n]))
	}

	return values, nil
}

func (d *TEA5767Driver) sliceToString(val []byte) string {
	res := ""
	for idx := range val {
		res += fmt.Sprintf("[%d]=0x%x(%d) ", idx, val[idx], val[idx])
	}
	return res
}

// TEA5767Config holds the additional configuration needed for TEA5767Driver.
type TEA5767Config struct {
	// Frequency is the station to tune on start, in MHz.
	Frequency float64

	// Band selects the tuning range, BandEU by default.
	Band Band

	Stereo                bool
	SoftMute              bool
	HighCutControl        bool
	StereoNoiseCancelling bool

	// DeEmphasis75 selects the 75 us de-emphasis used in the US and
	// Japan; the default 50 us matches Europe.
	DeEmphasis75 bool

	DebugMode bool
	DebugLog  func(format string, v ...interface{})
	Log       func(format string, v ...interface{})
}

// Validate ensures that our TEA5767Driver configuration is valid.
//
//noinspection GoUnnecessarilyExportedIdentifiers
func (c *TEA5767Config) Validate() error {
	if c.Log == nil {
		panic("logging function cannot be nil. Use something like log.Printf or an empty function instead")
	}
	if c.DebugMode && c.DebugLog == nil {
		panic("cannot use debugging mode without configuring a DebugLog function, e.g. log.Printf")
	}

	if c.Band != BandEU && c.Band != BandJP {
		return fmt.Errorf("unknown band mode %d", c.Band)
	}

	if c.Frequency == 0 {
		return fmt.Errorf("FM station frequency not set")
	}

	if adjusted := c.Band.Clamp(c.Frequency); adjusted != c.Frequency {
		min, max := c.Band.Bounds()
		c.Log("FM station frequency not in %.2f MHz ... %.2f MHz bounds, defaulting to %.2f\n", min, max, adjusted)
		c.Frequency = adjusted
	}

	return nil
}

// NewTEA5767Driver creates a new GoBot driver for our FM receiver.
func NewTEA5767Driver(connector i2c.Connector, cfg TEA5767Config, options ...func(i2c.Config)) (*TEA5767Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := &TEA5767Driver{
		name:         gobot.DefaultName("TEA5767Driver"),
		i2cConnector: connector,
		Config:       i2c.NewConfig(),
		i2cAddr:      Address,

		band:      cfg.Band,
		frequency: cfg.Frequency,

		forcedMono:            !cfg.Stereo,
		softMute:              cfg.SoftMute,
		highCutControl:        cfg.HighCutControl,
		stereoNoiseCancelling: cfg.StereoNoiseCancelling,
		deEmphasis75:          cfg.DeEmphasis75,

		searchStopLevel: SearchStopMid,

		debugMode: cfg.DebugMode,
		debugLog:  cfg.DebugLog,
		log:       cfg.Log,
	}

	for _, option := range options {
		option(res)
	}

	return res, nil
}

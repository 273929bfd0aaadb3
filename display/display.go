// Package display drives the 16x2 character LCD the radio uses as its
// front panel, an HD44780 compatible module behind a PCF8574 I2C
// backpack. It renders the tuned station and reception quality on the
// two lines of the screen.
package display

import (
	"fmt"
	"strings"
	"time"

	"gobot.io/x/gobot"
	"gobot.io/x/gobot/drivers/i2c"
)

const (
	// command signals that we want to send a command to the screen
	command = 0x04

	// data signals that we want to send data to the screen
	data = 0x05

	// address is our default address
	address = 0x27

	// columns and rows of the panel
	columns = 16
	rows    = 2
)

// StationDisplayDriver renders the tuner state on an LCD1602 module.
//
//goland:noinspection GoUnnecessarilyExportedIdentifiers
type StationDisplayDriver struct {
	name         string
	i2cConnector i2c.Connector
	i2c.Config
	gobot.Commander

	i2cAddr int
	conn    i2c.Connection

	backlightEnabled bool
}

// Name of our device
func (lcd *StationDisplayDriver) Name() string {
	return lcd.name
}

// SetName set the name of our device
func (lcd *StationDisplayDriver) SetName(name string) {
	lcd.name = name
}

// Start the device work
func (lcd *StationDisplayDriver) Start() error {
	bus := lcd.GetBusOrDefault(lcd.i2cConnector.GetDefaultBus())

	var err error
	lcd.conn, err = lcd.i2cConnector.GetConnection(lcd.i2cAddr, bus)
	if err != nil {
		return err
	}

	// 4 bit mode, two lines, display on, cursor off
	commands := []byte{0x33, 0x32, 0x28, 0x0C}
	for _, cmd := range commands {
		if err = lcd.sendCommand(cmd); err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}

	return lcd.ClearScreen()
}

// Halt stops the device in a graceful way
func (lcd *StationDisplayDriver) Halt() error {
	lcd.backlightEnabled = false
	return lcd.ClearScreen()
}

// Connection retrieves the i2c connection to the device
func (lcd *StationDisplayDriver) Connection() gobot.Connection {
	return lcd.i2cConnector.(gobot.Connection)
}

// Send a command to the LCD
func (lcd *StationDisplayDriver) sendCommand(cmd byte) (err error) {
	return lcd.communicate(command, cmd)
}

// Send data to the LCD
func (lcd *StationDisplayDriver) sendData(cmd byte) (err error) {
	return lcd.communicate(data, cmd)
}

// write handles the actual data writing to the LCD i2c connection
func (lcd *StationDisplayDriver) write(data byte) error {
	temp := data
	if lcd.backlightEnabled {
		temp |= 0x08
	} else {
		temp |= 0x07
	}

	return lcd.conn.WriteByte(temp)
}

// Communicate with the LCD by sending either a command or data
func (lcd *StationDisplayDriver) communicate(cmdType byte, cmd byte) error {
	// Send bit7-4 firstly
	buf := cmd & 0xF0
	buf |= cmdType // RS = 0, RW = 0, EN = 1
	if err := lcd.write(buf); err != nil {
		return err
	}

	time.Sleep(2 * time.Millisecond)

	buf &= 0xFB // Make EN = 0
	if err := lcd.write(buf); err != nil {
		return err
	}

	// Send bit3-0 secondly
	buf = (cmd & 0x0F) << 4
	buf |= cmdType // RS = 0, RW = 0, EN = 1
	if err := lcd.write(buf); err != nil {
		return err
	}

	time.Sleep(2 * time.Millisecond)
	buf &= 0xFB // Make EN = 0
	return lcd.write(buf)
}

// EnableBacklight turns on the screen backlight
func (lcd *StationDisplayDriver) EnableBacklight() error {
	err := lcd.write(0x08)
	time.Sleep(2 * time.Millisecond)
	return err
}

// DisableBacklight turns off the screen backlight
func (lcd *StationDisplayDriver) DisableBacklight() error {
	err := lcd.write(0x07)
	time.Sleep(2 * time.Millisecond)
	return err
}

// ClearScreen removes any message from the LCD screen
func (lcd *StationDisplayDriver) ClearScreen() error {
	// The screen clearing command needs to be
	// sent with the backlight turned on
	tmp := lcd.backlightEnabled
	lcd.backlightEnabled = true
	if err := lcd.sendCommand(0x01); err != nil {
		return err
	}

	time.Sleep(2 * time.Millisecond)

	lcd.backlightEnabled = tmp

	if lcd.backlightEnabled {
		return lcd.EnableBacklight()
	}
	return lcd.DisableBacklight()
}

// writeLine moves the cursor to the start of the given row and renders
// the text, padded or truncated to the width of the panel.
func (lcd *StationDisplayDriver) writeLine(row int, text string) error {
	if row < 0 {
		row = 0
	}
	if row > rows-1 {
		row = rows - 1
	}

	if len(text) < columns {
		text += strings.Repeat(" ", columns-len(text))
	}

	// Move cursor
	addr := byte(0x80 + 0x40*row)
	if err := lcd.sendCommand(addr); err != nil {
		return err
	}

	for _, ch := range text[:columns] {
		if err := lcd.sendData(byte(ch)); err != nil {
			return err
		}
	}
	return nil
}

// DisplayStation renders the tuned frequency on the first line and the
// reception quality on the second, e.g.:
//
//     FM  101.10 MHz
//     ST  |||||.....
//
// level is the tuner's ADC reading, 0 to 15, drawn as a ten segment bar.
func (lcd *StationDisplayDriver) DisplayStation(freq float64, stereo bool, level uint8) error {
	if err := lcd.writeLine(0, fmt.Sprintf("FM  %6.2f MHz", freq)); err != nil {
		return err
	}

	mode := "MO"
	if stereo {
		mode = "ST"
	}

	if level > 15 {
		level = 15
	}
	segments := (int(level)*10 + 7) / 15
	bar := strings.Repeat("|", segments) + strings.Repeat(".", 10-segments)

	return lcd.writeLine(1, fmt.Sprintf("%s  %s", mode, bar))
}

// DisplayMessage renders a free-form message on the display, wrapped
// over both lines.
func (lcd *StationDisplayDriver) DisplayMessage(msg string) error {
	if len(msg) < columns*rows {
		msg += strings.Repeat(" ", columns*rows-len(msg))
	}

	if err := lcd.writeLine(0, msg[:columns]); err != nil {
		return err
	}
	return lcd.writeLine(1, msg[columns:columns*rows])
}

// NewStationDisplayDriver creates a new GoBot driver for the front panel LCD.
func NewStationDisplayDriver(connector i2c.Connector, options ...func(i2c.Config)) (*StationDisplayDriver, error) {
	lcd := &StationDisplayDriver{
		name:             gobot.DefaultName("StationDisplayDriver"),
		i2cConnector:     connector,
		Config:           i2c.NewConfig(),
		i2cAddr:          address,
		backlightEnabled: true,
	}

	for _, option := range options {
		option(lcd)
	}

	return lcd, nil
}

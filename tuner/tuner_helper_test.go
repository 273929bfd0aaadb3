package tuner

import (
	"errors"
	"fmt"
	"sync"

	"gobot.io/x/gobot/drivers/i2c"
)

// I2CTestAdaptor is useful to implement tests for
// passing i2c messages back and forth.
type I2CTestAdaptor struct {
	name          string
	written       []byte
	lastWritten   []byte
	mtx           sync.Mutex
	i2cConnectErr bool
	i2cReadImpl   func(*I2CTestAdaptor, []byte) (int, error)
	i2cWriteImpl  func(*I2CTestAdaptor, []byte) (int, error)
}

func (t *I2CTestAdaptor) Read(b []byte) (count int, err error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.i2cReadImpl(t, b)
}

func (t *I2CTestAdaptor) Write(b []byte) (count int, err error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.written = append(t.written, b...)
	return t.i2cWriteImpl(t, b)
}

func (t *I2CTestAdaptor) Close() error {
	return nil
}

func (t *I2CTestAdaptor) ReadByte() (val byte, err error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	bytes := []byte{0}
	bytesRead, err := t.i2cReadImpl(t, bytes)
	if err != nil {
		return 0, err
	}
	if bytesRead != 1 {
		return 0, fmt.Errorf("buffer underrun")
	}
	val = bytes[0]
	return
}

func (t *I2CTestAdaptor) ReadByteData(/* reg */ uint8) (val uint8, err error) {
	return t.ReadByte()
}

func (t *I2CTestAdaptor) ReadWordData(/* reg */ uint8) (val uint16, err error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	bytes := []byte{0, 0}
	bytesRead, err := t.i2cReadImpl(t, bytes)
	if err != nil {
		return 0, err
	}
	if bytesRead != 2 {
		return 0, fmt.Errorf("buffer underrun")
	}
	l, h := bytes[0], bytes[1]
	return (uint16(h) << 8) | uint16(l), err
}

func (t *I2CTestAdaptor) WriteByte(val byte) (err error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.written = append(t.written, val)
	bytes := []byte{val}
	_, err = t.i2cWriteImpl(t, bytes)
	return
}

func (t *I2CTestAdaptor) WriteByteData(reg uint8, val uint8) (err error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.written = append(t.written, reg)
	t.written = append(t.written, val)
	bytes := []byte{val}
	_, err = t.i2cWriteImpl(t, bytes)
	return
}

func (t *I2CTestAdaptor) WriteWordData(reg uint8, val uint16) (err error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.written = append(t.written, reg)
	l := uint8(val & 0xff)
	h := uint8((val >> 8) & 0xff)
	t.written = append(t.written, l)
	t.written = append(t.written, h)
	bytes := []byte{l, h}
	_, err = t.i2cWriteImpl(t, bytes)
	return
}

func (t *I2CTestAdaptor) WriteBlockData(reg uint8, b []byte) (err error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.written = append(t.written, reg)
	t.written = append(t.written, b...)
	_, err = t.i2cWriteImpl(t, b)
	return
}

func (t *I2CTestAdaptor) GetConnection( /* address */ int, /* bus */ int) (connection i2c.Connection, err error) {
	if t.i2cConnectErr {
		return nil, errors.New("invalid i2c connection")
	}
	return t, nil
}

func (t *I2CTestAdaptor) GetDefaultBus() int {
	return 0
}

func (t *I2CTestAdaptor) Name() string          { return t.name }
func (t *I2CTestAdaptor) SetName(n string)      { t.name = n }
func (t *I2CTestAdaptor) Connect() (err error)  { return }
func (t *I2CTestAdaptor) Finalize() (err error) { return }

// lastRegisterWrite returns the five bytes of the most recent register
// file write.
func (t *I2CTestAdaptor) lastRegisterWrite() [REGISTERS]byte {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	var regs [REGISTERS]byte
	copy(regs[:], t.lastWritten)
	return regs
}

// NewI2cTestAdaptor builds a test adaptor whose reads answer with the
// given status frame and whose writes are recorded for inspection.
func NewI2cTestAdaptor(statusFrame [REGISTERS]byte) *I2CTestAdaptor {
	val := &I2CTestAdaptor{
		i2cConnectErr: false,
	}

	val.i2cReadImpl = func(t *I2CTestAdaptor, buff []byte) (int, error) {
		n := copy(buff, statusFrame[:])
		return n, nil
	}

	val.i2cWriteImpl = func(t *I2CTestAdaptor, buff []byte) (int, error) {
		t.lastWritten = make([]byte, len(buff))
		copy(t.lastWritten, buff)
		return len(buff), nil
	}

	return val
}

// readyStatusFrame fabricates the chip's answer for a completed tune
// to the given frequency.
func readyStatusFrame(freq float64, stereo bool, level uint8) [REGISTERS]byte {
	pll := pllWord(freq)

	var frame [REGISTERS]byte
	frame[0] = RD1_READY | byte(pll>>8)
	frame[1] = byte(pll & 0xFF)
	if stereo {
		frame[2] = RD3_STEREO
	}
	frame[3] = level << 4
	return frame
}

package gpio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// DefaultPigpioAddr is where pigpiod listens by default.
const DefaultPigpioAddr = "localhost:8888"

// pigpiod socket command numbers.
const (
	cmdModes = 0
	cmdWrite = 4
	cmdPWM   = 5
	cmdPRS   = 6
	cmdPFS   = 7
	cmdPIGPV = 26
	cmdHP    = 86
)

const modeOutput = 1

// DaemonError is a negative status returned by pigpiod.
type DaemonError struct {
	Cmd  uint32
	Code int32
}

func (e *DaemonError) Error() string {
	if msg, ok := daemonErrors[e.Code]; ok {
		return fmt.Sprintf("pigpio: command %d: %s (%d)", e.Cmd, msg, e.Code)
	}
	return fmt.Sprintf("pigpio: command %d failed with code %d", e.Cmd, e.Code)
}

var daemonErrors = map[int32]string{
	-2:  "gpio not 0-31",
	-3:  "gpio not 0-53",
	-4:  "mode not 0-7",
	-5:  "level not 0-1",
	-7:  "frequency not valid",
	-8:  "dutycycle outside set range",
	-41: "gpio is not in use for PWM",
	-92: "pwm range not 25-40000",
	-95: "gpio has no hardware PWM",
	-96: "invalid hardware PWM frequency",
	-97: "hardware PWM dutycycle not 0-1M",
}

// PigpioClient speaks the pigpiod socket protocol. Each command is a 16 byte
// little-endian header (cmd, p1, p2, p3) plus optional extension bytes; the
// reply echoes the header with the status in the last word.
type PigpioClient struct {
	mu      sync.Mutex
	conn    net.Conn
	addr    string
	timeout time.Duration
}

// DialPigpio connects to pigpiod at addr and checks that it answers.
func DialPigpio(ctx context.Context, addr string, timeout time.Duration) (*PigpioClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to pigpiod at %s: %w", addr, err)
	}
	c := &PigpioClient{conn: conn, addr: addr, timeout: timeout}
	if _, err := c.command(cmdPIGPV, 0, 0, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pigpiod version check: %w", err)
	}
	return c, nil
}

// Name identifies the driver.
func (c *PigpioClient) Name() string {
	return "pigpio(" + c.addr + ")"
}

func (c *PigpioClient) command(cmd, p1, p2 uint32, ext []byte) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 16+len(ext))
	binary.LittleEndian.PutUint32(buf[0:4], cmd)
	binary.LittleEndian.PutUint32(buf[4:8], p1)
	binary.LittleEndian.PutUint32(buf[8:12], p2)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(ext)))
	copy(buf[16:], ext)

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, fmt.Errorf("set deadline: %w", err)
		}
	}
	if _, err := c.conn.Write(buf); err != nil {
		return 0, fmt.Errorf("send command %d: %w", cmd, err)
	}

	var resp [16]byte
	if _, err := io.ReadFull(c.conn, resp[:]); err != nil {
		return 0, fmt.Errorf("read reply to command %d: %w", cmd, err)
	}
	res := int32(binary.LittleEndian.Uint32(resp[12:16]))
	if res < 0 {
		return res, &DaemonError{Cmd: cmd, Code: res}
	}
	return res, nil
}

// SetOutput puts pin in output mode.
func (c *PigpioClient) SetOutput(pin int) error {
	_, err := c.command(cmdModes, uint32(pin), modeOutput, nil)
	return err
}

// Write drives pin to level.
func (c *PigpioClient) Write(pin int, level Level) error {
	_, err := c.command(cmdWrite, uint32(pin), uint32(level), nil)
	return err
}

// HardwarePWM starts hardware PWM on pin. Any daemon refusal is reported as
// ErrHardwarePWMUnavailable so callers can fall back to software PWM.
func (c *PigpioClient) HardwarePWM(pin, freq, duty int) error {
	ext := make([]byte, 4)
	binary.LittleEndian.PutUint32(ext, uint32(duty))
	_, err := c.command(cmdHP, uint32(pin), uint32(freq), ext)
	if err != nil {
		if _, ok := err.(*DaemonError); ok {
			return fmt.Errorf("%w: %v", ErrHardwarePWMUnavailable, err)
		}
		return err
	}
	return nil
}

// SetPWMFrequency sets the software PWM frequency. pigpiod picks the closest
// frequency it supports.
func (c *PigpioClient) SetPWMFrequency(pin, freq int) error {
	_, err := c.command(cmdPFS, uint32(pin), uint32(freq), nil)
	return err
}

// SetPWMRange sets the software PWM full-scale value.
func (c *PigpioClient) SetPWMRange(pin, rng int) error {
	_, err := c.command(cmdPRS, uint32(pin), uint32(rng), nil)
	return err
}

// SetPWMDutyCycle sets the software PWM duty.
func (c *PigpioClient) SetPWMDutyCycle(pin, duty int) error {
	_, err := c.command(cmdPWM, uint32(pin), uint32(duty), nil)
	return err
}

// Close drops the daemon connection. pigpiod keeps pin state.
func (c *PigpioClient) Close() error {
	return c.conn.Close()
}

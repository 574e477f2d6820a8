package device

import (
  "fmt"
  "strconv"
)

// Mode is the kind of I2C request issued to the bridge.
type Mode uint8

const (
  ModeWrite Mode = iota
  ModeRead
  ModeReadContinuous
  ModeStopReading
)

func (m Mode) String() string {
  switch m {
  case ModeWrite:
    return "Write"
  case ModeRead:
    return "Read"
  case ModeReadContinuous:
    return "ReadContinuous"
  case ModeStopReading:
    return "StopReading"
  default:
    panic("unknown command mode: " + strconv.Itoa(int(m)))
  }
}

// Command is a request sent to a device through the bridge. Data is only set for writes,
// ByteCount only for reads.
type Command struct {
  Mode Mode
  Address uint8
  Register uint8
  Data []byte
  ByteCount int
}

func WriteCommand(address, register uint8, data ...byte) Command {
  return Command{Mode: ModeWrite, Address: address, Register: register, Data: data}
}

func ReadCommand(address, register uint8, byteCount int) Command {
  return Command{Mode: ModeRead, Address: address, Register: register, ByteCount: byteCount}
}

func ReadContinuousCommand(address, register uint8, byteCount int) Command {
  return Command{Mode: ModeReadContinuous, Address: address, Register: register, ByteCount: byteCount}
}

func StopReadingCommand(address uint8) Command {
  return Command{Mode: ModeStopReading, Address: address}
}

func (c Command) String() string {
  switch c.Mode {
  case ModeWrite:
    return fmt.Sprintf("%v[addr=0x%02x, reg=0x%02x, data=%x]", c.Mode, c.Address, c.Register, c.Data)
  case ModeStopReading:
    return fmt.Sprintf("%v[addr=0x%02x]", c.Mode, c.Address)
  default:
    return fmt.Sprintf("%v[addr=0x%02x, reg=0x%02x, count=%d]", c.Mode, c.Address, c.Register, c.ByteCount)
  }
}

// ResponseFrame is the answer to a read request. Data excludes the echoed register byte.
type ResponseFrame struct {
  Address uint8
  Register uint8
  Data []byte
}

// Len is the length of the frame on the wire, echoed register byte included.
func (f ResponseFrame) Len() int {
  return len(f.Data) + 1
}

// Bytes returns the frame as sent by the bridge: the echoed register followed by the data.
func (f ResponseFrame) Bytes() []byte {
  return append([]byte{f.Register}, f.Data...)
}

type FrameHandler func(ResponseFrame)

// CommandChannel carries commands to devices and routes their response frames back. It is
// implemented by the board layer; it encodes commands on the wire, drivers never do.
type CommandChannel interface {
  Send(cmd Command) error
  // Handle sets the handler for frames coming from address, replacing any previous one.
  // A nil handler removes it.
  Handle(address uint8, h FrameHandler)
}

// imports_win32.go - Default kernel32-style import set

package main

// Win32 constants the default imports understand.
const (
	stdInputHandle  = 0xFFFFFFF6 // -10
	stdOutputHandle = 0xFFFFFFF5 // -11
	stdErrorHandle  = 0xFFFFFFF4 // -12

	genericWrite = 0x40000000

	errorFileNotFound   = 2
	errorInvalidHandle  = 6
	errorGenericFailure = 31

	consoleInHandle  = 1
	consoleOutHandle = 2
	consoleErrHandle = 3
)

// Win32Env bundles the host services behind the default import set.
type Win32Env struct {
	Console   *Console
	Files     *FileHost
	LastError uint32
	ExitCode  uint32
	Exited    bool
}

func NewWin32Env(console *Console, files *FileHost) *Win32Env {
	return &Win32Env{Console: console, Files: files}
}

// readCString reads a NUL-terminated string from guest memory, capped
// at 4096 bytes.
func readCString(mem *Memory, addr uint32) string {
	var buf []byte
	for i := uint32(0); i < 4096; i++ {
		a := addr + i
		if a >= mem.Size() {
			break
		}
		b := mem.Read8(a)
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

// RegisterDefaults fills an import table with the console, file and
// process imports most console programs link against. All are stdcall.
func (e *Win32Env) RegisterDefaults(t *ImportTable) {
	t.RegisterStdcall("ExitProcess", 1, func(c *CPU_X86) error {
		e.ExitCode = StackArg(c, 0)
		e.Exited = true
		c.Halted = true
		return nil
	})

	t.RegisterStdcall("GetStdHandle", 1, func(c *CPU_X86) error {
		switch StackArg(c, 0) {
		case stdInputHandle:
			c.EAX = consoleInHandle
		case stdOutputHandle:
			c.EAX = consoleOutHandle
		case stdErrorHandle:
			c.EAX = consoleErrHandle
		default:
			c.EAX = 0xFFFFFFFF
			e.LastError = errorInvalidHandle
		}
		return nil
	})

	t.RegisterStdcall("GetLastError", 0, func(c *CPU_X86) error {
		c.EAX = e.LastError
		return nil
	})

	t.RegisterStdcall("WriteConsoleA", 5, func(c *CPU_X86) error {
		buf := StackArg(c, 1)
		length := StackArg(c, 2)
		written := StackArg(c, 3)
		data := make([]byte, 0, length)
		for i := uint32(0); i < length && buf+i < c.Memory().Size(); i++ {
			data = append(data, c.Memory().Read8(buf+i))
		}
		e.Console.Write(data)
		if written != 0 {
			c.Memory().Write32(written, uint32(len(data)))
		}
		c.EAX = 1
		return nil
	})

	t.RegisterStdcall("ReadConsoleA", 5, func(c *CPU_X86) error {
		buf := StackArg(c, 1)
		length := StackArg(c, 2)
		read := StackArg(c, 3)
		line := e.Console.ReadLine(0)
		if uint32(len(line)) > length {
			line = line[:length]
		}
		for i, b := range line {
			c.Memory().Write8(buf+uint32(i), b)
		}
		if read != 0 {
			c.Memory().Write32(read, uint32(len(line)))
		}
		c.EAX = 1
		return nil
	})

	t.RegisterStdcall("CreateFileA", 7, func(c *CPU_X86) error {
		name := readCString(c.Memory(), StackArg(c, 0))
		access := StackArg(c, 1)
		h, err := e.Files.Open(name, access&genericWrite != 0)
		if err != nil {
			c.EAX = 0xFFFFFFFF
			e.LastError = errorFileNotFound
			return nil
		}
		// Host file handles start at 4, clear of the console handles.
		c.EAX = h
		return nil
	})

	t.RegisterStdcall("ReadFile", 5, func(c *CPU_X86) error {
		handle := StackArg(c, 0)
		buf := StackArg(c, 1)
		length := StackArg(c, 2)
		read := StackArg(c, 3)

		var data []byte
		if handle == consoleInHandle {
			data = e.Console.ReadLine(0)
			if uint32(len(data)) > length {
				data = data[:length]
			}
		} else {
			data = make([]byte, length)
			n, err := e.Files.Read(handle, data)
			if err != nil {
				c.EAX = 0
				e.LastError = errorInvalidHandle
				return nil
			}
			data = data[:n]
		}

		for i, b := range data {
			c.Memory().Write8(buf+uint32(i), b)
		}
		if read != 0 {
			c.Memory().Write32(read, uint32(len(data)))
		}
		c.EAX = 1
		return nil
	})

	t.RegisterStdcall("WriteFile", 5, func(c *CPU_X86) error {
		handle := StackArg(c, 0)
		buf := StackArg(c, 1)
		length := StackArg(c, 2)
		written := StackArg(c, 3)

		data := make([]byte, 0, length)
		for i := uint32(0); i < length && buf+i < c.Memory().Size(); i++ {
			data = append(data, c.Memory().Read8(buf+i))
		}

		var n int
		if handle == consoleOutHandle || handle == consoleErrHandle {
			e.Console.Write(data)
			n = len(data)
		} else {
			var err error
			n, err = e.Files.Write(handle, data)
			if err != nil {
				c.EAX = 0
				e.LastError = errorGenericFailure
				return nil
			}
		}

		if written != 0 {
			c.Memory().Write32(written, uint32(n))
		}
		c.EAX = 1
		return nil
	})

	t.RegisterStdcall("SetFilePointer", 4, func(c *CPU_X86) error {
		handle := StackArg(c, 0)
		dist := int32(StackArg(c, 1))
		method := int(StackArg(c, 3))
		pos, err := e.Files.Seek(handle, dist, method)
		if err != nil {
			c.EAX = 0xFFFFFFFF
			e.LastError = errorInvalidHandle
			return nil
		}
		c.EAX = pos
		return nil
	})

	t.RegisterStdcall("GetFileSize", 2, func(c *CPU_X86) error {
		size, err := e.Files.Size(StackArg(c, 0))
		if err != nil {
			c.EAX = 0xFFFFFFFF
			e.LastError = errorInvalidHandle
			return nil
		}
		c.EAX = size
		return nil
	})

	t.RegisterStdcall("CloseHandle", 1, func(c *CPU_X86) error {
		handle := StackArg(c, 0)
		if handle <= consoleErrHandle {
			c.EAX = 1
			return nil
		}
		if err := e.Files.Close(handle); err != nil {
			c.EAX = 0
			e.LastError = errorInvalidHandle
			return nil
		}
		c.EAX = 1
		return nil
	})
}

//go:build darwin && cgo

package ecrequest

/*
#cgo LDFLAGS: -framework IOKit -framework CoreFoundation
#include <IOKit/IOKitLib.h>
#include <string.h>

#define SMC_KERNEL_INDEX 2
#define SMC_CMD_READ_BYTES 5
#define SMC_CMD_READ_KEYINFO 9

typedef struct {
	char major;
	char minor;
	char build;
	char reserved[1];
	UInt16 release;
} smcVersion;

typedef struct {
	UInt16 version;
	UInt16 length;
	UInt32 cpuPLimit;
	UInt32 gpuPLimit;
	UInt32 memPLimit;
} smcPLimitData;

typedef struct {
	UInt32 dataSize;
	UInt32 dataType;
	char dataAttributes;
} smcKeyInfo;

typedef struct {
	UInt32 key;
	smcVersion vers;
	smcPLimitData pLimitData;
	smcKeyInfo keyInfo;
	char result;
	char status;
	char data8;
	UInt32 data32;
	unsigned char bytes[32];
} smcKeyData;

static kern_return_t smc_open(io_connect_t *conn) {
	io_service_t service = IOServiceGetMatchingService(0, IOServiceMatching("AppleSMC"));
	if (service == 0) {
		return kIOReturnNotFound;
	}
	kern_return_t r = IOServiceOpen(service, mach_task_self(), 0, conn);
	IOObjectRelease(service);
	return r;
}

static kern_return_t smc_call(io_connect_t conn, smcKeyData *in, smcKeyData *out) {
	size_t outSize = sizeof(smcKeyData);
	return IOConnectCallStructMethod(conn, SMC_KERNEL_INDEX, in, sizeof(smcKeyData), out, &outSize);
}

static kern_return_t smc_key_info(io_connect_t conn, UInt32 key, UInt32 *size, UInt32 *type, char *result) {
	smcKeyData in, out;
	memset(&in, 0, sizeof(in));
	memset(&out, 0, sizeof(out));
	in.key = key;
	in.data8 = SMC_CMD_READ_KEYINFO;
	kern_return_t r = smc_call(conn, &in, &out);
	*size = out.keyInfo.dataSize;
	*type = out.keyInfo.dataType;
	*result = out.result;
	return r;
}

static kern_return_t smc_read(io_connect_t conn, UInt32 key, UInt32 size, unsigned char *buf, char *result) {
	smcKeyData in, out;
	memset(&in, 0, sizeof(in));
	memset(&out, 0, sizeof(out));
	in.key = key;
	in.keyInfo.dataSize = size;
	in.data8 = SMC_CMD_READ_BYTES;
	kern_return_t r = smc_call(conn, &in, &out);
	memcpy(buf, out.bytes, size > 32 ? 32 : size);
	*result = out.result;
	return r;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/TheCacophonyProject/powerflow/smc"
)

// SMC result code for an unknown key.
const smcKeyNotFound = 0x84

// AppleSMC talks to the AppleSMC IOKit user client.
type AppleSMC struct {
	mu   sync.Mutex
	conn C.io_connect_t
	open bool
}

func NewAppleSMC() *AppleSMC {
	return &AppleSMC{}
}

func (a *AppleSMC) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return nil
	}
	if r := C.smc_open(&a.conn); r != C.KERN_SUCCESS {
		return fmt.Errorf("failed to open AppleSMC: kern_return 0x%x", int(r))
	}
	a.open = true
	return nil
}

func (a *AppleSMC) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil
	}
	a.open = false
	if r := C.IOServiceClose(a.conn); r != C.KERN_SUCCESS {
		return fmt.Errorf("failed to close AppleSMC: kern_return 0x%x", int(r))
	}
	return nil
}

func (a *AppleSMC) ReadKeyInfo(key string) (KeyInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return KeyInfo{}, ErrNotOpen
	}
	var size, typ C.UInt32
	var result C.char
	if r := C.smc_key_info(a.conn, C.UInt32(smc.FourCC(key)), &size, &typ, &result); r != C.KERN_SUCCESS {
		return KeyInfo{}, fmt.Errorf("key info call for '%s' failed: kern_return 0x%x", key, int(r))
	}
	if err := resultError(key, byte(result)); err != nil {
		return KeyInfo{}, err
	}
	return KeyInfo{Size: int(size), Type: smc.FromFourCC(uint32(typ))}, nil
}

func (a *AppleSMC) ReadKeyBytes(key string, size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil, ErrNotOpen
	}
	if size <= 0 || size > smc.MaxValueSize {
		return nil, &ShortReadError{Key: key, Want: size, Got: 0}
	}
	buf := make([]byte, smc.MaxValueSize)
	var result C.char
	r := C.smc_read(a.conn, C.UInt32(smc.FourCC(key)), C.UInt32(size), (*C.uchar)(unsafe.Pointer(&buf[0])), &result)
	if r != C.KERN_SUCCESS {
		return nil, fmt.Errorf("read call for '%s' failed: kern_return 0x%x", key, int(r))
	}
	if err := resultError(key, byte(result)); err != nil {
		return nil, err
	}
	return buf[:size], nil
}

func resultError(key string, result byte) error {
	switch result {
	case 0:
		return nil
	case smcKeyNotFound:
		return ErrKeyNotFound
	default:
		return &StatusError{Key: key, Status: int(result)}
	}
}

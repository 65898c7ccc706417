package sandbox

import (
	"bytes"
	"encoding/hex"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/klauspost/compress/zlib"

	"github.com/GriffinCanCode/MusicHub/backend/internal/providers/crypto"
)

// maxInflate caps decompressed output of lx.utils.zlib.inflate
const maxInflate = 32 << 20

// newBuffer wraps b in a Uint8Array whose toString accepts an encoding,
// which is the subset of Node's Buffer scripts rely on.
func (s *Session) newBuffer(b []byte) goja.Value {
	if s.uint8Array == nil {
		return s.vm.ToValue(s.vm.NewArrayBuffer(b))
	}
	obj, err := s.uint8Array(nil, s.vm.ToValue(s.vm.NewArrayBuffer(b)))
	if err != nil {
		return s.vm.ToValue(s.vm.NewArrayBuffer(b))
	}
	_ = obj.Set("toString", func(call goja.FunctionCall) goja.Value {
		return s.vm.ToValue(encodeBytes(s.toBytes(call.This), call.Argument(0)))
	})
	return obj
}

// toBytes reads script data as bytes: typed arrays, ArrayBuffers, number
// arrays and strings (UTF-8) are accepted.
func (s *Session) toBytes(v goja.Value) []byte {
	if !present(v) {
		return nil
	}

	switch x := v.Export().(type) {
	case goja.ArrayBuffer:
		return append([]byte(nil), x.Bytes()...)
	case []byte:
		return append([]byte(nil), x...)
	case string:
		return []byte(x)
	case []any:
		out := make([]byte, 0, len(x))
		for _, n := range x {
			switch num := n.(type) {
			case int64:
				out = append(out, byte(num))
			case float64:
				out = append(out, byte(int64(num)))
			}
		}
		return out
	}

	if obj, ok := v.(*goja.Object); ok && obj.Get("buffer") != nil {
		if ab, ok := obj.Get("buffer").Export().(goja.ArrayBuffer); ok {
			raw := ab.Bytes()
			off := obj.Get("byteOffset").ToInteger()
			n := obj.Get("byteLength").ToInteger()
			if off >= 0 && n >= 0 && off+n <= int64(len(raw)) {
				return append([]byte(nil), raw[off:off+n]...)
			}
		}
	}
	return []byte(v.String())
}

// decodeString interprets text under a Node encoding name
func decodeString(text string, encoding goja.Value) []byte {
	enc := "utf8"
	if present(encoding) {
		enc = strings.ToLower(encoding.String())
	}

	switch enc {
	case "hex":
		out, err := hex.DecodeString(text)
		if err != nil {
			return []byte{}
		}
		return out
	case "base64", "base64url":
		return crypto.Base64Decode(text)
	case "binary", "latin1":
		out := make([]byte, 0, len(text))
		for _, r := range text {
			out = append(out, byte(r))
		}
		return out
	default:
		return []byte(text)
	}
}

// encodeBytes renders b under a Node encoding name
func encodeBytes(b []byte, encoding goja.Value) string {
	enc := "utf8"
	if present(encoding) {
		enc = strings.ToLower(encoding.String())
	}

	switch enc {
	case "hex":
		return hex.EncodeToString(b)
	case "base64":
		return crypto.Base64Encode(b)
	case "binary", "latin1":
		var sb strings.Builder
		for _, c := range b {
			sb.WriteRune(rune(c))
		}
		return sb.String()
	default:
		if utf8.Valid(b) {
			return string(b)
		}
		return strings.ToValidUTF8(string(b), "�")
	}
}

func (s *Session) bufferFrom(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if text, ok := arg.Export().(string); ok {
		return s.newBuffer(decodeString(text, call.Argument(1)))
	}
	return s.newBuffer(s.toBytes(arg))
}

func (s *Session) bufferObject() *goja.Object {
	buf := s.vm.NewObject()
	_ = buf.Set("from", s.bufferFrom)
	_ = buf.Set("alloc", func(call goja.FunctionCall) goja.Value {
		n := call.Argument(0).ToInteger()
		if n < 0 || n > crypto.MaxRandomBytes*256 {
			n = 0
		}
		return s.newBuffer(make([]byte, n))
	})
	_ = buf.Set("isBuffer", func(call goja.FunctionCall) goja.Value {
		_, ok := call.Argument(0).Export().([]byte)
		return s.vm.ToValue(ok)
	})
	_ = buf.Set("byteLength", func(call goja.FunctionCall) goja.Value {
		return s.vm.ToValue(len(s.toBytes(call.Argument(0))))
	})
	_ = buf.Set("concat", func(call goja.FunctionCall) goja.Value {
		var out []byte
		if list, ok := call.Argument(0).(*goja.Object); ok {
			for _, k := range list.Keys() {
				out = append(out, s.toBytes(list.Get(k))...)
			}
		}
		return s.newBuffer(out)
	})
	return buf
}

func (s *Session) bufferUtils() *goja.Object {
	utils := s.vm.NewObject()
	_ = utils.Set("from", s.bufferFrom)
	_ = utils.Set("bufToString", func(call goja.FunctionCall) goja.Value {
		return s.vm.ToValue(encodeBytes(s.toBytes(call.Argument(0)), call.Argument(1)))
	})
	return utils
}

// cryptoObject exposes the crypto provider. Bad input yields empty output.
func (s *Session) cryptoObject() *goja.Object {
	vm := s.vm
	c := vm.NewObject()

	digest := func(kind string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(crypto.Hash(kind, s.toBytes(call.Argument(0))))
		}
	}
	_ = c.Set("md5", digest("md5"))
	_ = c.Set("sha1", digest("sha1"))
	_ = c.Set("sha256", digest("sha256"))
	_ = c.Set("hash", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(crypto.Hash(call.Argument(0).String(), s.toBytes(call.Argument(1))))
	})

	_ = c.Set("base64Encode", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(crypto.Base64Encode(s.toBytes(call.Argument(0))))
	})
	_ = c.Set("base64Decode", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(encodeBytes(crypto.Base64Decode(call.Argument(0).String()), goja.Undefined()))
	})

	_ = c.Set("aesEncrypt", func(call goja.FunctionCall) goja.Value {
		return s.newBuffer(crypto.AESEncrypt(
			s.toBytes(call.Argument(0)),
			call.Argument(1).String(),
			s.toBytes(call.Argument(2)),
			s.toBytes(call.Argument(3)),
		))
	})
	_ = c.Set("aesDecrypt", func(call goja.FunctionCall) goja.Value {
		return s.newBuffer(crypto.AESDecrypt(
			s.toBytes(call.Argument(0)),
			call.Argument(1).String(),
			s.toBytes(call.Argument(2)),
			s.toBytes(call.Argument(3)),
		))
	})
	_ = c.Set("rsaEncrypt", func(call goja.FunctionCall) goja.Value {
		padding := ""
		if p := call.Argument(2); present(p) {
			padding = p.String()
		}
		return s.newBuffer(crypto.RSAEncrypt(s.toBytes(call.Argument(0)), call.Argument(1).String(), padding))
	})
	_ = c.Set("randomBytes", func(call goja.FunctionCall) goja.Value {
		return s.newBuffer(crypto.RandomBytes(int(call.Argument(0).ToInteger())))
	})
	return c
}

func (s *Session) zlibObject() *goja.Object {
	z := s.vm.NewObject()
	_ = z.Set("inflate", func(call goja.FunctionCall) goja.Value {
		r, err := zlib.NewReader(bytes.NewReader(s.toBytes(call.Argument(0))))
		if err != nil {
			return s.rejected(err.Error())
		}
		defer r.Close()

		out, err := io.ReadAll(io.LimitReader(r, maxInflate))
		if err != nil {
			return s.rejected(err.Error())
		}
		return s.resolved(s.newBuffer(out))
	})
	_ = z.Set("deflate", func(call goja.FunctionCall) goja.Value {
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(s.toBytes(call.Argument(0))); err != nil {
			return s.rejected(err.Error())
		}
		if err := w.Close(); err != nil {
			return s.rejected(err.Error())
		}
		return s.resolved(s.newBuffer(buf.Bytes()))
	})
	return z
}

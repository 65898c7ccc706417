package sandbox

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/providers/network"
)

// Event names understood by lx.on and lx.send
const (
	EventRequest     = "request"
	EventInited      = "inited"
	EventUpdateAlert = "updateAlert"
)

const (
	// PlatformVersion is reported to scripts as lx.version
	PlatformVersion = "2.0.0"
	// PlatformEnv is reported to scripts as lx.env
	PlatformEnv = "mobile"
)

func (s *Session) lxObject() *goja.Object {
	vm := s.vm
	lx := vm.NewObject()

	_ = lx.Set("version", PlatformVersion)
	_ = lx.Set("env", PlatformEnv)
	_ = lx.Set("currentScriptInfo", s.toJS(s.info))
	_ = lx.Set("EVENT_NAMES", s.toJS(map[string]string{
		"request":     EventRequest,
		"inited":      EventInited,
		"updateAlert": EventUpdateAlert,
	}))

	_ = lx.Set("on", s.on)
	_ = lx.Set("send", s.send)
	_ = lx.Set("request", func(call goja.FunctionCall) goja.Value { return s.request(call, false) })
	_ = lx.Set("fetch", func(call goja.FunctionCall) goja.Value { return s.request(call, true) })

	crypto := s.cryptoObject()
	_ = lx.Set("crypto", crypto)

	utils := vm.NewObject()
	_ = utils.Set("crypto", crypto)
	_ = utils.Set("buffer", s.bufferUtils())
	_ = utils.Set("zlib", s.zlibObject())
	_ = utils.Set("parseJSON", s.jsonParse)
	_ = utils.Set("stringifyJSON", s.jsonStringify)
	_ = utils.Set("encodeURIComponent", vm.Get("encodeURIComponent"))
	_ = utils.Set("decodeURIComponent", vm.Get("decodeURIComponent"))
	_ = lx.Set("utils", utils)

	data := vm.NewObject()
	_ = data.Set("get", func(call goja.FunctionCall) goja.Value {
		if v, ok := s.data[call.Argument(0).String()]; ok {
			return v
		}
		return goja.Null()
	})
	_ = data.Set("set", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		if _, exists := s.data[key]; exists || len(s.data) < s.cfg.DataLimit {
			s.data[key] = call.Argument(1)
		}
		return goja.Undefined()
	})
	_ = lx.Set("data", data)

	return lx
}

// on registers an event handler; only the request event is subscribable
func (s *Session) on(call goja.FunctionCall) goja.Value {
	event := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		return s.rejected("handler must be a function")
	}
	if event != EventRequest {
		return s.rejected("The event is not supported: " + event)
	}

	s.handlers[event] = fn
	s.logger.Debug("script registered handler", zap.String("event", event))
	return s.resolved(nil)
}

// send receives notifications from the script
func (s *Session) send(call goja.FunctionCall) goja.Value {
	event := call.Argument(0).String()
	data := s.exportJSON(call.Argument(1))

	switch event {
	case EventInited:
		s.caps = parseCapabilities(data)
		s.logger.Debug("script declared capabilities", zap.Int("platforms", len(s.caps)))
	case EventUpdateAlert:
		m, _ := data.(map[string]any)
		s.alert = &UpdateAlert{Log: str(m["log"]), UpdateURL: str(m["updateUrl"])}
		s.logger.Info("script sent update alert", zap.String("updateUrl", s.alert.UpdateURL))
	default:
		return s.rejected("The event is not supported: " + event)
	}
	return s.resolved(nil)
}

func parseCapabilities(data any) Capabilities {
	caps := Capabilities{}
	m, _ := data.(map[string]any)
	sources, _ := m["sources"].(map[string]any)

	for platform, raw := range sources {
		p, _ := raw.(map[string]any)
		qualities := strs(p["qualitys"])
		if len(qualities) == 0 {
			qualities = strs(p["qualities"])
		}
		caps[platform] = Platform{
			Name:      str(p["name"]),
			Type:      str(p["type"]),
			Actions:   strs(p["actions"]),
			Qualities: qualities,
		}
	}
	return caps
}

// request implements lx.request(url, options, callback) and lx.fetch.
// The returned promise always fulfills with a response object; network
// failures are reported through its ok and error fields.
func (s *Session) request(call goja.FunctionCall, fetchStyle bool) goja.Value {
	target := call.Argument(0)
	options := call.Argument(1)
	cb, hasCB := goja.AssertFunction(call.Argument(2))

	if fn, ok := goja.AssertFunction(options); ok {
		cb, hasCB = fn, true
		options = goja.Undefined()
	}
	if obj, ok := target.(*goja.Object); ok {
		options = obj
		target = obj.Get("url")
	}

	rawURL := ""
	if present(target) {
		rawURL = target.String()
	}
	opts := s.requestOptions(options)

	promise, resolve, _ := s.vm.NewPromise()
	done := s.loop.begin()

	go func() {
		resp := s.http.Do(s.ctx, rawURL, opts)
		s.loop.enqueue(func() {
			done()
			val := s.responseValue(resp, fetchStyle)

			if hasCB {
				errVal := goja.Null()
				if resp.Error != "" {
					errVal = s.newError(resp.Error)
				}
				s.callback(cb, goja.Undefined(), errVal, val, val.ToObject(s.vm).Get("body"))
			}
			resolve(val)
		})
	}()

	return s.vm.ToValue(promise)
}

func (s *Session) requestOptions(v goja.Value) network.Options {
	var opts network.Options
	if !present(v) {
		return opts
	}
	obj := v.ToObject(s.vm)

	if m := obj.Get("method"); present(m) {
		opts.Method = m.String()
	}
	opts.Headers = s.stringMap(obj.Get("headers"))
	opts.Form = s.stringMap(obj.Get("form"))
	opts.FormData = s.stringMap(obj.Get("formData"))

	if b := obj.Get("body"); present(b) {
		switch x := b.Export().(type) {
		case string:
			opts.Body = x
		case []byte, goja.ArrayBuffer:
			opts.Body = s.toBytes(b)
		default:
			opts.Body = s.exportJSON(b)
		}
	}
	if t := obj.Get("timeout"); present(t) {
		opts.Timeout = time.Duration(t.ToInteger()) * time.Millisecond
	}
	if b := obj.Get("binary"); present(b) {
		opts.Binary = b.ToBoolean()
	}
	return opts
}

func (s *Session) stringMap(v goja.Value) map[string]string {
	if !present(v) {
		return nil
	}
	obj := v.ToObject(s.vm)
	out := make(map[string]string)
	for _, k := range obj.Keys() {
		if val := obj.Get(k); present(val) {
			out[k] = val.String()
		}
	}
	return out
}

func (s *Session) responseValue(resp *network.Response, fetchStyle bool) goja.Value {
	m := resp.Map()
	raw, isBinary := resp.Body.([]byte)
	if isBinary {
		delete(m, "body")
		delete(m, "data")
	}

	obj := s.toJS(m).ToObject(s.vm)
	if isBinary {
		buf := s.newBuffer(raw)
		_ = obj.Set("body", buf)
		_ = obj.Set("data", buf)
	}

	if fetchStyle {
		body := obj.Get("body")
		_ = obj.Set("json", func(goja.FunctionCall) goja.Value {
			if text, ok := body.Export().(string); ok {
				v, err := s.jsonParse(goja.Undefined(), s.vm.ToValue(text))
				if err != nil {
					return s.rejected(exceptionMessage(err))
				}
				return s.resolved(v)
			}
			return s.resolved(body)
		})
		_ = obj.Set("text", func(goja.FunctionCall) goja.Value {
			if text, ok := body.Export().(string); ok {
				return s.resolved(text)
			}
			return s.resolved(s.display(body))
		})
	}
	return obj
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func strs(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := str(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

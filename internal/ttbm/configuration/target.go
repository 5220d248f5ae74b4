package configuration

import (
	"net"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DefaultTargetHost = "127.0.0.1"
	DefaultTargetPort = 6180
)

// Target is the address of the TickTockDB instance receiving data points.
type Target struct {
	Host string
	Port uint16
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// ParseTarget parses an address of the form host[:port], defaulting the port to DefaultTargetPort.
func ParseTarget(address string) (Target, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Target{}, errors.New("target address must not be empty")
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		// No port given; a bare IPv6 literal may still carry its brackets.
		host = address
		if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
		if host == "" || strings.ContainsAny(host, "[]") {
			return Target{}, errors.Errorf("invalid target address %q", address)
		}
		return Target{Host: host, Port: DefaultTargetPort}, nil
	}
	if host == "" {
		return Target{}, errors.Errorf("target address %q has no host", address)
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return Target{}, errors.Errorf("invalid port %q in target address %q", port, address)
	}
	return Target{Host: host, Port: uint16(p)}, nil
}

// CustomHooks are the decode hooks to pass to viper.Unmarshal when loading Options.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		TargetDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)),
}

// TargetDecodeHook decodes host[:port] strings into a Target.
func TargetDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(Target{}) {
			return data, nil
		}
		return ParseTarget(data.(string))
	}
}

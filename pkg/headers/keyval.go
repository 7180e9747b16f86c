package headers

import (
	"fmt"
	"strings"
)

// keyVal is an entry of a parameter list.
// Entries without a value (like "unicast") have an empty Value and HasValue false.
type keyVal struct {
	Key      string
	Value    string
	HasValue bool
}

func readKey(str string, separator byte) (string, string, bool) {
	i := 0
	for i < len(str) && str[i] != separator && str[i] != '=' {
		i++
	}

	if i < len(str) && str[i] == '=' {
		return str[:i], str[i+1:], true
	}
	return str[:i], str[i:], false
}

func readValue(origstr string, str string, separator byte) (string, string, error) {
	if len(str) > 0 && str[0] == '"' {
		i := 1
		for {
			if i >= len(str) {
				return "", "", fmt.Errorf("apexes not closed (%v)", origstr)
			}

			if str[i] == '"' {
				return str[1:i], str[i+1:], nil
			}

			i++
		}
	}

	i := 0
	for i < len(str) && str[i] != separator {
		i++
	}
	return str[:i], str[i:], nil
}

// keyValParse splits a list of parameters, preserving their order.
func keyValParse(str string, separator byte) ([]keyVal, error) {
	var ret []keyVal
	origstr := str

	for len(str) > 0 {
		// skip spaces
		str = strings.TrimLeft(str, " ")
		if str == "" {
			break
		}

		var kv keyVal
		kv.Key, str, kv.HasValue = readKey(str, separator)

		if kv.Key == "" {
			return nil, fmt.Errorf("empty key (%v)", origstr)
		}

		if kv.HasValue {
			var err error
			kv.Value, str, err = readValue(origstr, str, separator)
			if err != nil {
				return nil, err
			}
		}

		ret = append(ret, kv)

		// skip separator
		if len(str) > 0 && str[0] == separator {
			str = str[1:]
		}
	}

	return ret, nil
}

package wear

import "fmt"

// Method is the tag an application call carries in its first argument.
type Method int

const (
	MethodUnknown Method = iota
	MethodBuy
	MethodChangeDiscount
	MethodUpdateStock
)

var methodTags = map[Method]string{
	MethodBuy:            "buy",
	MethodChangeDiscount: "change_discount",
	MethodUpdateStock:    "update-stock",
}

// ParseMethod maps an argument to its Method.
func ParseMethod(arg []byte) Method {
	for m, tag := range methodTags {
		if tag == string(arg) {
			return m
		}
	}
	return MethodUnknown
}

// Tag returns the argument bytes that select m.
func (m Method) Tag() []byte {
	return []byte(methodTags[m])
}

func (m Method) String() string {
	if tag, ok := methodTags[m]; ok {
		return tag
	}
	return "unknown"
}

// Op is one of the operations the application performs.
type Op int

const (
	OpUnknown Op = iota
	OpCreate
	OpDelete
	OpBuy
	OpChangeDiscount
	OpUpdateStock
	OpClear
)

var opNames = []string{
	OpUnknown:        "unknown",
	OpCreate:         "create",
	OpDelete:         "delete",
	OpBuy:            "buy",
	OpChangeDiscount: "change_discount",
	OpUpdateStock:    "update_stock",
	OpClear:          "clear",
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

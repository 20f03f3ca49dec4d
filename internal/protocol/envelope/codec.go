package envelope

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"unicode/utf8"

	"go.uber.org/fx"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldEvent  = "event"
	fieldObject = "object"
)

// 带类型标签的值：只有一个字段的 Struct，字段名为标签
const (
	tagMap     = "m"
	tagBytes   = "b"
	tagNil     = "nil"
	tagFloat32 = "f32"
	tagInt     = "i"
	tagInt8    = "i8"
	tagInt16   = "i16"
	tagInt32   = "i32"
	tagInt64   = "i64"
	tagUint    = "u"
	tagUint8   = "u8"
	tagUint16  = "u16"
	tagUint32  = "u32"
	tagUint64  = "u64"
)

// tagNil 的载荷
const (
	nilList  = "list"
	nilMap   = "map"
	nilBytes = "bytes"
)

// Module 信封编解码 Fx 模块
var Module = fx.Module("envelope",
	fx.Provide(NewCodec),
)

// Envelope 解码后的信封
type Envelope struct {
	// Event 事件名，非空
	Event string

	// Object 附带对象，nil 表示仅事件通知
	Object any
}

// HasObject 是否附带对象
func (e Envelope) HasObject() bool {
	return e.Object != nil
}

// Codec 信封编解码器，无状态，可并发使用
type Codec struct {
	marshal proto.MarshalOptions
}

// NewCodec 创建编解码器
func NewCodec() *Codec {
	return &Codec{marshal: proto.MarshalOptions{Deterministic: true}}
}

// Encode 编码信封
//
// object 超出取值范围时返回 ErrUnsupportedObject，取值范围见包文档。
func (c *Codec) Encode(event string, object any) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}
	if !utf8.ValidString(event) {
		return nil, ErrInvalidEvent
	}

	fields := map[string]*structpb.Value{
		fieldEvent: structpb.NewStringValue(event),
	}
	if object != nil {
		value, err := toValue(object)
		if err != nil {
			return nil, err
		}
		fields[fieldObject] = value
	}

	data, err := c.marshal.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedObject, err)
	}
	return data, nil
}

// Decode 解码信封
//
// 任何解析失败都返回包装了 ErrMalformedEnvelope 的错误。
func (c *Codec) Decode(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty data", ErrMalformedEnvelope)
	}

	var root structpb.Struct
	if err := proto.Unmarshal(data, &root); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(root.ProtoReflect().GetUnknown()) > 0 {
		return Envelope{}, fmt.Errorf("%w: unknown fields", ErrMalformedEnvelope)
	}

	for key := range root.GetFields() {
		if key != fieldEvent && key != fieldObject {
			return Envelope{}, fmt.Errorf("%w: unexpected field %q", ErrMalformedEnvelope, key)
		}
	}

	eventValue, ok := root.GetFields()[fieldEvent]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}
	str, ok := eventValue.GetKind().(*structpb.Value_StringValue)
	if !ok || str.StringValue == "" {
		return Envelope{}, fmt.Errorf("%w: event is not a non-empty string", ErrMalformedEnvelope)
	}

	env := Envelope{Event: str.StringValue}
	if objectValue, ok := root.GetFields()[fieldObject]; ok {
		object, err := fromValue(objectValue)
		if err != nil {
			return Envelope{}, err
		}
		env.Object = object
	}
	return env, nil
}

// ============================================================================
//                              编码
// ============================================================================

func toValue(object any) (*structpb.Value, error) {
	switch v := object.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case bool:
		return structpb.NewBoolValue(v), nil
	case string:
		return structpb.NewStringValue(v), nil
	case float64:
		return structpb.NewNumberValue(v), nil
	case float32:
		return tagged(tagFloat32, structpb.NewNumberValue(float64(v))), nil
	case int:
		return taggedInt(tagInt, int64(v)), nil
	case int8:
		return taggedInt(tagInt8, int64(v)), nil
	case int16:
		return taggedInt(tagInt16, int64(v)), nil
	case int32:
		return taggedInt(tagInt32, int64(v)), nil
	case int64:
		return taggedInt(tagInt64, v), nil
	case uint:
		return taggedUint(tagUint, uint64(v)), nil
	case uint8:
		return taggedUint(tagUint8, uint64(v)), nil
	case uint16:
		return taggedUint(tagUint16, uint64(v)), nil
	case uint32:
		return taggedUint(tagUint32, uint64(v)), nil
	case uint64:
		return taggedUint(tagUint64, v), nil
	case []byte:
		if v == nil {
			return tagged(tagNil, structpb.NewStringValue(nilBytes)), nil
		}
		return tagged(tagBytes, structpb.NewStringValue(base64.StdEncoding.EncodeToString(v))), nil
	case []any:
		if v == nil {
			return tagged(tagNil, structpb.NewStringValue(nilList)), nil
		}
		values := make([]*structpb.Value, len(v))
		for i, elem := range v {
			value, err := toValue(elem)
			if err != nil {
				return nil, err
			}
			values[i] = value
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
	case map[string]any:
		if v == nil {
			return tagged(tagNil, structpb.NewStringValue(nilMap)), nil
		}
		fields := make(map[string]*structpb.Value, len(v))
		for k, elem := range v {
			value, err := toValue(elem)
			if err != nil {
				return nil, err
			}
			fields[k] = value
		}
		return tagged(tagMap, structpb.NewStructValue(&structpb.Struct{Fields: fields})), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedObject, object)
	}
}

func tagged(tag string, payload *structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{
		Fields: map[string]*structpb.Value{tag: payload},
	})
}

// 整数以十进制字符串承载，避免经过 double 丢失精度
func taggedInt(tag string, v int64) *structpb.Value {
	return tagged(tag, structpb.NewStringValue(strconv.FormatInt(v, 10)))
}

func taggedUint(tag string, v uint64) *structpb.Value {
	return tagged(tag, structpb.NewStringValue(strconv.FormatUint(v, 10)))
}

// ============================================================================
//                              解码
// ============================================================================

func fromValue(value *structpb.Value) (any, error) {
	switch k := value.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_BoolValue:
		return k.BoolValue, nil
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NumberValue:
		return k.NumberValue, nil
	case *structpb.Value_ListValue:
		elems := k.ListValue.GetValues()
		list := make([]any, len(elems))
		for i, elem := range elems {
			v, err := fromValue(elem)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	case *structpb.Value_StructValue:
		fields := k.StructValue.GetFields()
		if len(fields) != 1 {
			return nil, fmt.Errorf("%w: tagged value with %d fields", ErrMalformedEnvelope, len(fields))
		}
		for tag, payload := range fields {
			return fromTagged(tag, payload)
		}
	}
	return nil, fmt.Errorf("%w: value without kind", ErrMalformedEnvelope)
}

func fromTagged(tag string, payload *structpb.Value) (any, error) {
	switch tag {
	case tagMap:
		st, ok := payload.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return nil, fmt.Errorf("%w: map payload is not a struct", ErrMalformedEnvelope)
		}
		out := make(map[string]any, len(st.StructValue.GetFields()))
		for key, elem := range st.StructValue.GetFields() {
			v, err := fromValue(elem)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	case tagFloat32:
		n, ok := payload.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: f32 payload is not a number", ErrMalformedEnvelope)
		}
		return float32(n.NumberValue), nil
	}

	s, ok := payload.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s payload is not a string", ErrMalformedEnvelope, tag)
	}
	text := s.StringValue

	switch tag {
	case tagBytes:
		b, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		return b, nil
	case tagNil:
		switch text {
		case nilList:
			return []any(nil), nil
		case nilMap:
			return map[string]any(nil), nil
		case nilBytes:
			return []byte(nil), nil
		}
		return nil, fmt.Errorf("%w: unknown nil kind %q", ErrMalformedEnvelope, text)
	case tagInt:
		v, err := parseInt(text, strconv.IntSize)
		return int(v), err
	case tagInt8:
		v, err := parseInt(text, 8)
		return int8(v), err
	case tagInt16:
		v, err := parseInt(text, 16)
		return int16(v), err
	case tagInt32:
		v, err := parseInt(text, 32)
		return int32(v), err
	case tagInt64:
		return parseInt(text, 64)
	case tagUint:
		v, err := parseUint(text, strconv.IntSize)
		return uint(v), err
	case tagUint8:
		v, err := parseUint(text, 8)
		return uint8(v), err
	case tagUint16:
		v, err := parseUint(text, 16)
		return uint16(v), err
	case tagUint32:
		v, err := parseUint(text, 32)
		return uint32(v), err
	case tagUint64:
		return parseUint(text, 64)
	}
	return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformedEnvelope, tag)
}

func parseInt(s string, bits int) (int64, error) {
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return v, nil
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return v, nil
}

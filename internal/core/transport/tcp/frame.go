package tcp

import (
	"bufio"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// 帧类型
const (
	frameInvite        = "invite"
	frameAccept        = "accept"
	frameReject        = "reject"
	frameData          = "data"
	frameResourceBegin = "res_begin"
	frameResourceChunk = "res_chunk"
	frameResourceEnd   = "res_end"
	frameResourceAbort = "res_abort"
)

// 帧大小限制
const (
	maxHeaderSize     = 64 << 10
	maxBodySize       = 16 << 20
	resourceChunkSize = 32 << 10
)

// 帧头字段
const (
	headerFieldType    = "type"
	headerFieldName    = "name"
	headerFieldKey     = "key"
	headerFieldService = "service"
	headerFieldID      = "id"
	headerFieldSize    = "size"
	headerFieldReason  = "reason"
)

// frame 线上帧
type frame struct {
	Type    string
	Name    string
	Key     string
	Service string
	ID      string
	Size    int64
	Reason  string
	Body    []byte
}

// ============================================================================
//                              编码
// ============================================================================

func (f *frame) header() ([]byte, error) {
	fields := map[string]*structpb.Value{
		headerFieldType: structpb.NewStringValue(f.Type),
	}
	for k, v := range map[string]string{
		headerFieldName:    f.Name,
		headerFieldKey:     f.Key,
		headerFieldService: f.Service,
		headerFieldID:      f.ID,
		headerFieldReason:  f.Reason,
	} {
		if v != "" {
			fields[k] = structpb.NewStringValue(v)
		}
	}
	if f.Size > 0 {
		fields[headerFieldSize] = structpb.NewNumberValue(float64(f.Size))
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(&structpb.Struct{Fields: fields})
}

// writeFrame 以一次 Write 写出整帧
func writeFrame(w io.Writer, f *frame) error {
	header, err := f.header()
	if err != nil {
		return err
	}
	if len(f.Body) > maxBodySize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 0, 2*varint.MaxLenUvarint63+len(header)+len(f.Body))
	buf = append(buf, varint.ToUvarint(uint64(len(header)))...)
	buf = append(buf, header...)
	buf = append(buf, varint.ToUvarint(uint64(len(f.Body)))...)
	buf = append(buf, f.Body...)

	_, err = w.Write(buf)
	return err
}

// ============================================================================
//                              解码
// ============================================================================

// readFrame 读取一帧，连接正常关闭时返回 io.EOF
func readFrame(r *bufio.Reader) (*frame, error) {
	header, err := readChunk(r, maxHeaderSize)
	if err != nil {
		return nil, err
	}
	body, err := readChunk(r, maxBodySize)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	var st structpb.Struct
	if err := proto.Unmarshal(header, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	f := &frame{
		Type:    st.Fields[headerFieldType].GetStringValue(),
		Name:    st.Fields[headerFieldName].GetStringValue(),
		Key:     st.Fields[headerFieldKey].GetStringValue(),
		Service: st.Fields[headerFieldService].GetStringValue(),
		ID:      st.Fields[headerFieldID].GetStringValue(),
		Size:    int64(st.Fields[headerFieldSize].GetNumberValue()),
		Reason:  st.Fields[headerFieldReason].GetStringValue(),
		Body:    body,
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}

func readChunk(r *bufio.Reader, limit uint64) ([]byte, error) {
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

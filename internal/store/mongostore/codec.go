package mongostore

import (
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalCodec stores decimal.Decimal as BSON Decimal128 so $inc stays exact.
type decimalCodec struct{}

func (decimalCodec) EncodeValue(_ bson.EncodeContext, vw bson.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != decimalType {
		return bson.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}
	d := val.Interface().(decimal.Decimal)
	d128, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return fmt.Errorf("encode decimal %s: %w", d.String(), err)
	}
	return vw.WriteDecimal128(d128)
}

func (decimalCodec) DecodeValue(_ bson.DecodeContext, vr bson.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != decimalType {
		return bson.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}

	var (
		d   decimal.Decimal
		err error
	)
	switch vr.Type() {
	case bson.TypeDecimal128:
		var d128 bson.Decimal128
		d128, err = vr.ReadDecimal128()
		if err == nil {
			d, err = decimal.NewFromString(d128.String())
		}
	case bson.TypeDouble:
		var f float64
		f, err = vr.ReadDouble()
		d = decimal.NewFromFloat(f)
	case bson.TypeInt32:
		var i int32
		i, err = vr.ReadInt32()
		d = decimal.NewFromInt32(i)
	case bson.TypeInt64:
		var i int64
		i, err = vr.ReadInt64()
		d = decimal.NewFromInt(i)
	case bson.TypeString:
		var s string
		s, err = vr.ReadString()
		if err == nil {
			d, err = decimal.NewFromString(s)
		}
	case bson.TypeNull:
		err = vr.ReadNull()
	default:
		return fmt.Errorf("cannot decode %v into decimal", vr.Type())
	}
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(d))
	return nil
}

// NewRegistry returns the default BSON registry extended with the decimal codec.
func NewRegistry() *bson.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(decimalType, decimalCodec{})
	reg.RegisterTypeDecoder(decimalType, decimalCodec{})
	return reg
}

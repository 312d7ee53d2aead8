package dwarf

// DWARF v2-v4 constants, limited to what the decoder understands.

// Tag identifies the kind of a debug information entry.
type Tag uint64

const (
	TagCompileUnit       Tag = 0x11
	TagInlinedSubroutine Tag = 0x1d
	TagSubprogram        Tag = 0x2e
)

// Attr identifies an attribute of a debug information entry.
type Attr uint64

const (
	AttrName           Attr = 0x03
	AttrStmtList       Attr = 0x10
	AttrLowPC          Attr = 0x11
	AttrHighPC         Attr = 0x12
	AttrCompDir        Attr = 0x1b
	AttrAbstractOrigin Attr = 0x31
	AttrSpecification  Attr = 0x47
	AttrRanges         Attr = 0x55
)

// Form identifies the on-disk encoding of an attribute value.
type Form uint64

const (
	FormAddr        Form = 0x01
	FormBlock2      Form = 0x03
	FormBlock4      Form = 0x04
	FormData2       Form = 0x05
	FormData4       Form = 0x06
	FormData8       Form = 0x07
	FormString      Form = 0x08
	FormBlock       Form = 0x09
	FormBlock1      Form = 0x0a
	FormData1       Form = 0x0b
	FormFlag        Form = 0x0c
	FormSdata       Form = 0x0d
	FormStrp        Form = 0x0e
	FormUdata       Form = 0x0f
	FormRefAddr     Form = 0x10
	FormRef1        Form = 0x11
	FormRef2        Form = 0x12
	FormRef4        Form = 0x13
	FormRef8        Form = 0x14
	FormRefUdata    Form = 0x15
	FormIndirect    Form = 0x16
	FormSecOffset   Form = 0x17
	FormExprloc     Form = 0x18
	FormFlagPresent Form = 0x19
)

package dosscan

// Wire constants from the Java Object Serialization Stream Protocol
// (see https://docs.oracle.com/javase/8/docs/platform/serialization/spec/protocol.html).
// Names and values mirror java.io.ObjectStreamConstants.
const (
	streamMagic   uint16 = 0xaced
	streamVersion uint16 = 0x0005

	tcBase           byte = 0x70
	tcNull           byte = 0x70
	tcReference      byte = 0x71
	tcClassDesc      byte = 0x72
	tcObject         byte = 0x73
	tcString         byte = 0x74
	tcArray          byte = 0x75
	tcClass          byte = 0x76
	tcBlockData      byte = 0x77
	tcEndBlockData   byte = 0x78
	tcReset          byte = 0x79
	tcBlockDataLong  byte = 0x7a
	tcException      byte = 0x7b
	tcLongString     byte = 0x7c
	tcProxyClassDesc byte = 0x7d
	tcEnum           byte = 0x7e
	tcMax            byte = 0x7e

	baseWireHandle int32 = 0x7e0000

	scWriteMethod    byte = 0x01
	scBlockData      byte = 0x08
	scSerializable   byte = 0x02
	scExternalizable byte = 0x04
	scEnum           byte = 0x10
)

// DoS ceilings, per spec `# 6 EXTERNAL INTERFACES`.
const (
	defaultArraySizeMax = 65536
	defaultReferenceMax = 32768
)

// stringClassName is the label recorded in the handle table for every
// handle-bearing String/LongString, matching java.lang.String's class name.
const stringClassName = "java.lang.String"

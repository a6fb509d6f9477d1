package registry

// MultiSendCallOnlyAddress is the Safe v1.3.0 MultiSendCallOnly deployment, the
// only batching contract the executor plugin accepts.
const MultiSendCallOnlyAddress = "0x40A2aCCbd92BCA938b02010E17A5b8929b49130D"

package model

import "os"

// Permission is a bitset over {owner, group, others} x {read, write, execute}.
type Permission uint16

const (
	OwnerRead Permission = 1 << iota
	OwnerWrite
	OwnerExecute
	GroupRead
	GroupWrite
	GroupExecute
	OthersRead
	OthersWrite
	OthersExecute

	EmptyPermission Permission = 0
)

func (p Permission) Has(bits Permission) bool {
	return p&bits == bits
}

func (p Permission) With(bits Permission) Permission {
	return p | bits
}

// String renders p the way `ls -l` prints a mode, e.g. "rwxr-x---".
func (p Permission) String() string {
	const symbols = "rwx"
	out := make([]byte, 9)
	for i := 0; i < 9; i++ {
		if p&(1<<i) != 0 {
			out[i] = symbols[i%3]
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

// Access classes and bits, matching the FTP user/group/world model.
const (
	UserAccess = iota
	GroupAccess
	WorldAccess
)

const (
	ReadPermission = iota
	WritePermission
	ExecutePermission
)

// Access is a native-neutral permission matrix indexed by [class][bit].
type Access [3][3]bool

// Permission translates the matrix into the shared bitset.
func (a Access) Permission() Permission {
	var p Permission
	for class := UserAccess; class <= WorldAccess; class++ {
		for bit := ReadPermission; bit <= ExecutePermission; bit++ {
			if a[class][bit] {
				p |= 1 << (class*3 + bit)
			}
		}
	}
	return p
}

// AccessFromMode tests the POSIX rwx bit positions of mode.
func AccessFromMode(mode os.FileMode) Access {
	var a Access
	perm := mode.Perm()
	for class := UserAccess; class <= WorldAccess; class++ {
		shift := uint(6 - class*3)
		a[class][ReadPermission] = perm&(0o4<<shift) != 0
		a[class][WritePermission] = perm&(0o2<<shift) != 0
		a[class][ExecutePermission] = perm&(0o1<<shift) != 0
	}
	return a
}
